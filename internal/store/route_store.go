package store

import (
	"fmt"

	"github.com/routelab/iprouted/internal/domain"
)

// RouteStore persists the routing table so the gateway can restore it after
// a restart. Implementations must be safe for concurrent use.
type RouteStore interface {
	// SaveHost records a host, creating an empty entry if it is new.
	SaveHost(name string) error
	// DeleteHost removes a host and all its networks and routes.
	DeleteHost(name string) error
	// AddNetwork attaches a network (with any routes it carries) to a host.
	AddNetwork(host string, n domain.Network) error
	// DeleteNetwork removes one network (by CIDR) from a host.
	DeleteNetwork(host, network string) error
	// AddRoute appends a route to an existing network of a host.
	AddRoute(host, network string, r domain.Route) error
	// Load reads the full routing table.
	Load() (domain.RoutingTable, error)
}

// SQLiteRouteStore implements RouteStore backed by SQLite.
type SQLiteRouteStore struct {
	db *DB
}

// NewSQLiteRouteStore creates a route store using the given database.
func NewSQLiteRouteStore(db *DB) *SQLiteRouteStore {
	return &SQLiteRouteStore{db: db}
}

// SaveHost records a host, creating an empty entry if it is new.
func (s *SQLiteRouteStore) SaveHost(name string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO hosts (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
	)
	if err != nil {
		return fmt.Errorf("saving host %s: %w", name, err)
	}
	return nil
}

// DeleteHost removes a host. Networks and routes cascade.
func (s *SQLiteRouteStore) DeleteHost(name string) error {
	_, err := s.db.sql.Exec(`DELETE FROM hosts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting host %s: %w", name, err)
	}
	return nil
}

// AddNetwork attaches a network to a host, inserting any routes it carries.
func (s *SQLiteRouteStore) AddNetwork(host string, n domain.Network) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("adding network %s: %w", n.Network, err)
	}

	res, err := tx.Exec(
		`INSERT INTO networks (host, network, gateway) VALUES (?, ?, ?)`,
		host, n.Network, n.Gateway,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("adding network %s for %s: %w", n.Network, host, err)
	}

	networkID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("adding network %s: %w", n.Network, err)
	}

	for _, r := range n.Routes {
		if _, err := tx.Exec(
			`INSERT INTO routes (network_id, destination, gateway) VALUES (?, ?, ?)`,
			networkID, r.Destination, r.Gateway,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("adding route %s via %s: %w", r.Destination, r.Gateway, err)
		}
	}

	return tx.Commit()
}

// DeleteNetwork removes one network from a host. Routes cascade.
func (s *SQLiteRouteStore) DeleteNetwork(host, network string) error {
	_, err := s.db.sql.Exec(
		`DELETE FROM networks WHERE host = ? AND network = ?`, host, network,
	)
	if err != nil {
		return fmt.Errorf("deleting network %s for %s: %w", network, host, err)
	}
	return nil
}

// AddRoute appends a route to an existing network of a host.
func (s *SQLiteRouteStore) AddRoute(host, network string, r domain.Route) error {
	var networkID int64
	err := s.db.sql.QueryRow(
		`SELECT id FROM networks WHERE host = ? AND network = ?`, host, network,
	).Scan(&networkID)
	if err != nil {
		return fmt.Errorf("finding network %s for %s: %w", network, host, err)
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO routes (network_id, destination, gateway) VALUES (?, ?, ?)`,
		networkID, r.Destination, r.Gateway,
	)
	if err != nil {
		return fmt.Errorf("adding route %s via %s: %w", r.Destination, r.Gateway, err)
	}
	return nil
}

// Load reads the full routing table.
func (s *SQLiteRouteStore) Load() (domain.RoutingTable, error) {
	table := domain.RoutingTable{}

	hostRows, err := s.db.sql.Query(`SELECT name FROM hosts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("loading hosts: %w", err)
	}
	defer hostRows.Close()

	for hostRows.Next() {
		var name string
		if err := hostRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning host: %w", err)
		}
		table[name] = domain.HostEntry{Networks: []domain.Network{}}
	}
	if err := hostRows.Err(); err != nil {
		return nil, fmt.Errorf("loading hosts: %w", err)
	}

	type netRow struct {
		id   int64
		host string
	}
	netRows, err := s.db.sql.Query(
		`SELECT id, host, network, gateway FROM networks ORDER BY host, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading networks: %w", err)
	}
	defer netRows.Close()

	index := map[int64]netRow{}
	networks := map[int64]domain.Network{}
	var order []int64
	for netRows.Next() {
		var id int64
		var host string
		var n domain.Network
		if err := netRows.Scan(&id, &host, &n.Network, &n.Gateway); err != nil {
			return nil, fmt.Errorf("scanning network: %w", err)
		}
		index[id] = netRow{id: id, host: host}
		networks[id] = n
		order = append(order, id)
	}
	if err := netRows.Err(); err != nil {
		return nil, fmt.Errorf("loading networks: %w", err)
	}

	routeRows, err := s.db.sql.Query(
		`SELECT network_id, destination, gateway FROM routes ORDER BY network_id, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}
	defer routeRows.Close()

	for routeRows.Next() {
		var networkID int64
		var r domain.Route
		if err := routeRows.Scan(&networkID, &r.Destination, &r.Gateway); err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		n, ok := networks[networkID]
		if !ok {
			continue
		}
		n.Routes = append(n.Routes, r)
		networks[networkID] = n
	}
	if err := routeRows.Err(); err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}

	for _, id := range order {
		host := index[id].host
		entry, ok := table[host]
		if !ok {
			entry = domain.HostEntry{Networks: []domain.Network{}}
		}
		entry.Networks = append(entry.Networks, networks[id])
		table[host] = entry
	}

	return table, nil
}
