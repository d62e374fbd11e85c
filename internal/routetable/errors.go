package routetable

import "errors"

var (
	// ErrHostUnknown means the host never registered with the gateway.
	ErrHostUnknown = errors.New("host is not registered")

	// ErrNetworkTaken means the requested network overlaps one already in
	// the table, for this host or any other.
	ErrNetworkTaken = errors.New("network overlaps an existing network")

	// ErrNetworkNotAllowed means the requested network falls outside the
	// configured address pools.
	ErrNetworkNotAllowed = errors.New("network is outside the allowed pools")

	// ErrTooManyNetworks means the host reached its network quota.
	ErrTooManyNetworks = errors.New("host has reached its network limit")

	// ErrGatewayNotInNetwork means no network of the host contains the
	// route's gateway address.
	ErrGatewayNotInNetwork = errors.New("no registered network contains the route gateway")

	// ErrNetworkNotFound means the host holds no network with that CIDR.
	ErrNetworkNotFound = errors.New("network not found for host")
)
