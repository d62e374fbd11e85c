package store

import (
	"fmt"
	"sync"

	"github.com/routelab/iprouted/internal/domain"
)

// MemoryRouteStore is an in-memory RouteStore. State is lost on restart;
// it backs the "memory" store backend and tests.
type MemoryRouteStore struct {
	mu    sync.Mutex
	table domain.RoutingTable
}

// NewMemoryRouteStore creates an empty in-memory route store.
func NewMemoryRouteStore() *MemoryRouteStore {
	return &MemoryRouteStore{table: domain.RoutingTable{}}
}

// SaveHost records a host, creating an empty entry if it is new.
func (m *MemoryRouteStore) SaveHost(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table[name]; !ok {
		m.table[name] = domain.HostEntry{Networks: []domain.Network{}}
	}
	return nil
}

// DeleteHost removes a host and all its networks and routes.
func (m *MemoryRouteStore) DeleteHost(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, name)
	return nil
}

// AddNetwork attaches a network to a host.
func (m *MemoryRouteStore) AddNetwork(host string, n domain.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.table[host]
	if !ok {
		entry = domain.HostEntry{Networks: []domain.Network{}}
	}
	entry.Networks = append(entry.Networks, n.Clone())
	m.table[host] = entry
	return nil
}

// DeleteNetwork removes one network from a host.
func (m *MemoryRouteStore) DeleteNetwork(host, network string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.table[host]
	if !ok {
		return nil
	}
	kept := entry.Networks[:0]
	for _, n := range entry.Networks {
		if n.Network != network {
			kept = append(kept, n)
		}
	}
	entry.Networks = kept
	m.table[host] = entry
	return nil
}

// AddRoute appends a route to an existing network of a host.
func (m *MemoryRouteStore) AddRoute(host, network string, r domain.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.table[host]
	if !ok {
		return fmt.Errorf("finding network %s for %s: host not found", network, host)
	}
	for i, n := range entry.Networks {
		if n.Network == network {
			entry.Networks[i].Routes = append(entry.Networks[i].Routes, r)
			m.table[host] = entry
			return nil
		}
	}
	return fmt.Errorf("finding network %s for %s: network not found", network, host)
}

// Load reads the full routing table.
func (m *MemoryRouteStore) Load() (domain.RoutingTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Clone(), nil
}
