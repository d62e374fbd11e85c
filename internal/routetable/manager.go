// Package routetable holds the gateway's authoritative routing table and
// enforces the rules for claiming networks and publishing routes.
package routetable

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/routelab/iprouted/internal/domain"
	"github.com/routelab/iprouted/internal/hooks"
	"github.com/routelab/iprouted/internal/logging"
	"github.com/routelab/iprouted/internal/store"
)

// Policy limits what hosts may claim.
type Policy struct {
	// MaxNetworksPerHost caps networks per host. Zero means unlimited.
	MaxNetworksPerHost int
	// AllowedPools restricts claimed networks to these prefixes. Empty
	// means any IPv4 network is allowed.
	AllowedPools []netip.Prefix
}

// Manager owns the routing table. All mutations go through it, under a
// single lock, and are persisted to the store before hooks fire.
type Manager struct {
	store  store.RouteStore
	hooks  *hooks.Manager
	log    *logging.Logger
	policy Policy

	// mu makes the overlap check and the insert atomic together; the
	// stores' own locking is not enough for that.
	mu    sync.Mutex
	table domain.RoutingTable
}

// NewManager creates a manager and loads the table from the store.
func NewManager(s store.RouteStore, h *hooks.Manager, log *logging.Logger, policy Policy) (*Manager, error) {
	table, err := s.Load()
	if err != nil {
		return nil, fmt.Errorf("loading routing table: %w", err)
	}

	m := &Manager{
		store:  s,
		hooks:  h,
		log:    log.Sub("routetable"),
		policy: policy,
		table:  table,
	}
	m.log.Info().Int("hosts", len(table)).Msg("routing table loaded")
	return m, nil
}

// RegisterHost creates an empty entry for a host if it has none. A host
// with an empty entry is known but holds no networks yet.
func (m *Manager) RegisterHost(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("register host: empty name")
	}

	m.mu.Lock()
	if _, ok := m.table[name]; ok {
		m.mu.Unlock()
		return nil
	}
	if err := m.store.SaveHost(name); err != nil {
		m.mu.Unlock()
		return err
	}
	m.table[name] = domain.HostEntry{Networks: []domain.Network{}}
	m.mu.Unlock()

	m.log.Info().Str("host", name).Msg("host registered")
	m.hooks.Emit(ctx, hooks.EventHostJoined, map[string]any{"host": name})
	m.emitTableUpdated(ctx)
	return nil
}

// RemoveHost drops a host and everything it registered.
func (m *Manager) RemoveHost(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.table[name]; !ok {
		m.mu.Unlock()
		return nil
	}
	if err := m.store.DeleteHost(name); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.table, name)
	m.mu.Unlock()

	m.log.Info().Str("host", name).Msg("host removed")
	m.hooks.Emit(ctx, hooks.EventHostLeft, map[string]any{"host": name})
	m.emitTableUpdated(ctx)
	return nil
}

// RequestNetwork claims a network for a host. The interface string carries
// both the gateway address and the mask, ex "192.168.250.1/24"; the masked
// prefix becomes the claimed network. Fails if the network overlaps any
// network already in the table, falls outside the allowed pools, or the
// host is at its quota.
func (m *Manager) RequestNetwork(ctx context.Context, host, iface string) (domain.Network, error) {
	gw, pfx, err := domain.ParseInterface(iface)
	if err != nil {
		return domain.Network{}, err
	}

	if len(m.policy.AllowedPools) > 0 && !poolAllows(m.policy.AllowedPools, pfx) {
		return domain.Network{}, fmt.Errorf("%w: %s", ErrNetworkNotAllowed, pfx)
	}

	n := domain.Network{Network: pfx.String(), Gateway: gw.String()}

	m.mu.Lock()
	entry, ok := m.table[host]
	if !ok {
		m.mu.Unlock()
		return domain.Network{}, fmt.Errorf("%w: %s", ErrHostUnknown, host)
	}
	if m.policy.MaxNetworksPerHost > 0 && len(entry.Networks) >= m.policy.MaxNetworksPerHost {
		m.mu.Unlock()
		return domain.Network{}, fmt.Errorf("%w: %s holds %d", ErrTooManyNetworks, host, len(entry.Networks))
	}
	for owner, e := range m.table {
		for _, existing := range e.Networks {
			if existing.Overlaps(n) {
				m.mu.Unlock()
				return domain.Network{}, fmt.Errorf("%w: %s overlaps %s held by %s",
					ErrNetworkTaken, n.Network, existing.Network, owner)
			}
		}
	}
	if err := m.store.AddNetwork(host, n); err != nil {
		m.mu.Unlock()
		return domain.Network{}, err
	}
	entry.Networks = append(entry.Networks, n)
	m.table[host] = entry
	m.mu.Unlock()

	m.log.Info().Str("host", host).Str("network", n.Network).Str("gateway", n.Gateway).Msg("network claimed")
	m.hooks.Emit(ctx, hooks.EventNetworkRequested, map[string]any{
		"host": host, "network": n.Network, "gateway": n.Gateway,
	})
	m.emitTableUpdated(ctx)
	return n.Clone(), nil
}

// RequestRoute publishes a static route for a host. The gateway must lie
// inside one of the host's claimed networks; the route is attached to the
// network that contains it.
func (m *Manager) RequestRoute(ctx context.Context, host, gateway, destination string) (domain.Route, error) {
	gw, err := domain.ParseAddr(gateway)
	if err != nil {
		return domain.Route{}, err
	}
	dest, err := domain.ParsePrefix(destination)
	if err != nil {
		return domain.Route{}, err
	}

	r := domain.Route{Destination: dest.String(), Gateway: gw.String()}

	m.mu.Lock()
	entry, ok := m.table[host]
	if !ok {
		m.mu.Unlock()
		return domain.Route{}, fmt.Errorf("%w: %s", ErrHostUnknown, host)
	}
	idx := -1
	for i, n := range entry.Networks {
		if n.Contains(gw) {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return domain.Route{}, fmt.Errorf("%w: gateway %s, host %s", ErrGatewayNotInNetwork, gateway, host)
	}
	if err := m.store.AddRoute(host, entry.Networks[idx].Network, r); err != nil {
		m.mu.Unlock()
		return domain.Route{}, err
	}
	entry.Networks[idx].Routes = append(entry.Networks[idx].Routes, r)
	m.table[host] = entry
	network := entry.Networks[idx].Network
	m.mu.Unlock()

	m.log.Info().Str("host", host).Str("destination", r.Destination).Str("gateway", r.Gateway).Msg("route published")
	m.hooks.Emit(ctx, hooks.EventRouteRequested, map[string]any{
		"host": host, "network": network, "destination": r.Destination, "gateway": r.Gateway,
	})
	m.emitTableUpdated(ctx)
	return r, nil
}

// ReleaseNetwork gives a claimed network back, with all its routes.
func (m *Manager) ReleaseNetwork(ctx context.Context, host, network string) error {
	pfx, err := domain.ParsePrefix(network)
	if err != nil {
		return err
	}
	cidr := pfx.String()

	m.mu.Lock()
	entry, ok := m.table[host]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHostUnknown, host)
	}
	idx := -1
	for i, n := range entry.Networks {
		if n.Network == cidr {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s on %s", ErrNetworkNotFound, cidr, host)
	}
	if err := m.store.DeleteNetwork(host, cidr); err != nil {
		m.mu.Unlock()
		return err
	}
	entry.Networks = append(entry.Networks[:idx], entry.Networks[idx+1:]...)
	m.table[host] = entry
	m.mu.Unlock()

	m.log.Info().Str("host", host).Str("network", cidr).Msg("network released")
	m.hooks.Emit(ctx, hooks.EventNetworkReleased, map[string]any{"host": host, "network": cidr})
	m.emitTableUpdated(ctx)
	return nil
}

// Table returns a deep copy of the routing table.
func (m *Manager) Table() domain.RoutingTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Clone()
}

// Flattened returns every network in the table as a single list.
func (m *Manager) Flattened() []domain.Network {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Flatten()
}

func (m *Manager) emitTableUpdated(ctx context.Context) {
	m.hooks.Emit(ctx, hooks.EventTableUpdated, map[string]any{"table": m.Table()})
}

func poolAllows(pools []netip.Prefix, pfx netip.Prefix) bool {
	for _, pool := range pools {
		if pool.Contains(pfx.Addr()) && pfx.Bits() >= pool.Bits() {
			return true
		}
	}
	return false
}
