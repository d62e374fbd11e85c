// Package domain defines the routing-table model shared by the gateway,
// the requirer client, and the stores.
package domain

import (
	"fmt"
	"net/netip"
)

// Route is a static route attached to a network: traffic for Destination
// is reachable via Gateway.
type Route struct {
	Destination string `json:"destination"` // IPv4 CIDR, ex: "172.250.0.0/16"
	Gateway     string `json:"gateway"`     // IPv4 address, ex: "192.168.250.3"
}

// Network is an IPv4 network claimed by a host, with its gateway address
// and any static routes reachable through it.
type Network struct {
	Network string  `json:"network"` // IPv4 CIDR, ex: "192.168.250.0/24"
	Gateway string  `json:"gateway"` // IPv4 address, ex: "192.168.250.1"
	Routes  []Route `json:"routes,omitempty"`
}

// HostEntry holds all networks registered by a single host. A host that has
// joined but not yet requested a network has an entry with no networks,
// which distinguishes it from a host the gateway has never seen.
type HostEntry struct {
	Networks []Network `json:"networks"`
}

// RoutingTable maps host names to their registered networks.
type RoutingTable map[string]HostEntry

// ParseInterface splits an interface string like "192.168.250.1/24" into
// its gateway address and the masked network prefix. The address part is
// the gateway; the prefix is canonicalized to the network address.
func ParseInterface(s string) (gateway netip.Addr, network netip.Prefix, err error) {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Addr{}, netip.Prefix{}, fmt.Errorf("parsing interface %q: %w", s, err)
	}
	if !pfx.Addr().Is4() {
		return netip.Addr{}, netip.Prefix{}, fmt.Errorf("interface %q: only IPv4 is supported", s)
	}
	return pfx.Addr(), pfx.Masked(), nil
}

// ParsePrefix parses an IPv4 CIDR and canonicalizes it to its network address.
func ParsePrefix(s string) (netip.Prefix, error) {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("parsing network %q: %w", s, err)
	}
	if !pfx.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("network %q: only IPv4 is supported", s)
	}
	return pfx.Masked(), nil
}

// ParseAddr parses an IPv4 address.
func ParseAddr(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parsing address %q: %w", s, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("address %q: only IPv4 is supported", s)
	}
	return addr, nil
}

// Prefix returns the network's parsed CIDR.
func (n Network) Prefix() (netip.Prefix, error) {
	return ParsePrefix(n.Network)
}

// Contains reports whether the given address falls inside the network.
func (n Network) Contains(addr netip.Addr) bool {
	pfx, err := n.Prefix()
	if err != nil {
		return false
	}
	return pfx.Contains(addr)
}

// Overlaps reports whether two networks share any addresses.
func (n Network) Overlaps(other Network) bool {
	a, err := n.Prefix()
	if err != nil {
		return false
	}
	b, err := other.Prefix()
	if err != nil {
		return false
	}
	return a.Overlaps(b)
}

// Validate checks the network's internal consistency: parseable CIDR and
// gateway, gateway inside the network, and every route gateway inside it too.
func (n Network) Validate() error {
	pfx, err := n.Prefix()
	if err != nil {
		return err
	}
	gw, err := ParseAddr(n.Gateway)
	if err != nil {
		return err
	}
	if !pfx.Contains(gw) {
		return fmt.Errorf("gateway %s is not inside network %s", n.Gateway, n.Network)
	}
	for _, r := range n.Routes {
		if _, err := ParsePrefix(r.Destination); err != nil {
			return err
		}
		rgw, err := ParseAddr(r.Gateway)
		if err != nil {
			return err
		}
		if !pfx.Contains(rgw) {
			return fmt.Errorf("route gateway %s is not inside network %s", r.Gateway, n.Network)
		}
	}
	return nil
}

// Clone returns a deep copy of the network.
func (n Network) Clone() Network {
	out := Network{Network: n.Network, Gateway: n.Gateway}
	if n.Routes != nil {
		out.Routes = make([]Route, len(n.Routes))
		copy(out.Routes, n.Routes)
	}
	return out
}

// Clone returns a deep copy of the host entry.
func (e HostEntry) Clone() HostEntry {
	out := HostEntry{Networks: make([]Network, 0, len(e.Networks))}
	for _, n := range e.Networks {
		out.Networks = append(out.Networks, n.Clone())
	}
	return out
}

// Clone returns a deep copy of the routing table. Callers may mutate the
// result freely without aliasing gateway state.
func (t RoutingTable) Clone() RoutingTable {
	out := make(RoutingTable, len(t))
	for host, entry := range t {
		out[host] = entry.Clone()
	}
	return out
}

// Flatten returns every network in the table as a single list, losing the
// host grouping. Useful for building interface or firewall configuration
// from the table as a whole.
func (t RoutingTable) Flatten() []Network {
	var out []Network
	for _, entry := range t {
		for _, n := range entry.Networks {
			out = append(out, n.Clone())
		}
	}
	return out
}

// HostFor returns the name of the host whose networks contain the given
// address, if any.
func (t RoutingTable) HostFor(addr netip.Addr) (string, bool) {
	for host, entry := range t {
		for _, n := range entry.Networks {
			if n.Contains(addr) {
				return host, true
			}
		}
	}
	return "", false
}
