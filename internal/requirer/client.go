// Package requirer is the client side of the gateway protocol. A host embeds
// it to claim networks and publish routes; observers use it to read and watch
// the routing table.
package requirer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/routelab/iprouted/internal/domain"
	"github.com/routelab/iprouted/internal/gateway"
	"github.com/routelab/iprouted/internal/logging"
	"github.com/routelab/iprouted/internal/version"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("requirer client is closed")

// RPCError is an error response from the gateway.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config configures a gateway connection.
type Config struct {
	GatewayURL string // ws:// or wss:// URL of the gateway /ws endpoint
	Token      string
	Password   string
	Host       string // host name to register; required in host mode
	Mode       string // "host" | "observer", defaults to "observer"
}

// Client is a connected gateway client.
type Client struct {
	cfg   Config
	conn  *websocket.Conn
	log   *logging.Logger
	hello gateway.HelloOK

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan gateway.Frame
	watchers []chan domain.RoutingTable
	closed   bool
	done     chan struct{}
}

// Dial connects to the gateway and completes the handshake. In host mode the
// gateway registers Host in the routing table before this returns.
func Dial(ctx context.Context, cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.Mode == "" {
		cfg.Mode = "observer"
	}
	if cfg.Mode == "host" && cfg.Host == "" {
		return nil, errors.New("host mode requires a host name")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cfg.GatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway %s: %w", cfg.GatewayURL, err)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		log:     log.Sub("requirer"),
		pending: make(map[string]chan gateway.Frame),
		done:    make(chan struct{}),
	}

	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)

	// Challenge first
	var challenge gateway.Frame
	if err := c.conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("reading challenge: %w", err)
	}
	if challenge.Event != gateway.EventConnectChallenge {
		return fmt.Errorf("expected challenge, got event %q", challenge.Event)
	}

	id := c.cfg.Host
	if id == "" {
		id = "observer-" + uuid.New().String()[:8]
	}

	connectReq, err := gateway.NewRequest(uuid.New().String(), "connect", gateway.ConnectParams{
		MinProtocol: gateway.ProtocolVersion,
		MaxProtocol: gateway.ProtocolVersion,
		Client: gateway.ClientInfo{
			ID:       id,
			Version:  version.Version,
			Platform: "go",
			Mode:     c.cfg.Mode,
		},
		Auth:      &gateway.ConnectAuth{Token: c.cfg.Token, Password: c.cfg.Password},
		UserAgent: "iprouted/" + version.Version,
	})
	if err != nil {
		return err
	}
	if err := c.conn.WriteJSON(connectReq); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	var resp gateway.Frame
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}
	if resp.OK == nil || !*resp.OK {
		if resp.Error != nil {
			return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return errors.New("handshake rejected")
	}
	if err := json.Unmarshal(resp.Payload, &c.hello); err != nil {
		return fmt.Errorf("parsing hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Time{})
	c.log.Debug().Str("connId", c.hello.Server.ConnID).Str("mode", c.cfg.Mode).Msg("connected to gateway")
	return nil
}

// Hello returns the server's handshake payload.
func (c *Client) Hello() gateway.HelloOK {
	return c.hello
}

// readLoop routes responses to their callers and fans out table updates.
func (c *Client) readLoop() {
	defer c.teardown()
	for {
		var frame gateway.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		switch frame.Type {
		case gateway.FrameTypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}

		case gateway.FrameTypeEvent:
			if frame.Event == gateway.EventTableUpdated {
				c.handleTableUpdate(frame)
			}
		}
	}
}

func (c *Client) handleTableUpdate(frame gateway.Frame) {
	var payload struct {
		Table domain.RoutingTable `json:"table"`
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		c.log.Warn().Err(err).Msg("bad table update payload")
		return
	}

	c.mu.Lock()
	watchers := make([]chan domain.RoutingTable, len(c.watchers))
	copy(watchers, c.watchers)
	c.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- payload.Table:
		default:
			// Slow watcher, drop the snapshot; the next update carries
			// the full table anyway.
		}
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	for _, w := range c.watchers {
		close(w)
	}
	c.watchers = nil
	c.mu.Unlock()
	close(c.done)
}

// Call performs an RPC round trip. The response payload is unmarshalled
// into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := uuid.New().String()
	req, err := gateway.NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan gateway.Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err = c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if frame.OK == nil || !*frame.OK {
			if frame.Error != nil {
				return &RPCError{Code: frame.Error.Code, Message: frame.Error.Message}
			}
			return fmt.Errorf("%s failed", method)
		}
		if out != nil && frame.Payload != nil {
			return json.Unmarshal(frame.Payload, out)
		}
		return nil
	}
}

// RequestNetwork claims the network derived from the interface string,
// ex "192.168.250.1/24".
func (c *Client) RequestNetwork(ctx context.Context, iface string) (domain.Network, error) {
	var out struct {
		Network domain.Network `json:"network"`
	}
	err := c.Call(ctx, "network.request", map[string]string{"interface": iface}, &out)
	return out.Network, err
}

// ReleaseNetwork gives a claimed network back.
func (c *Client) ReleaseNetwork(ctx context.Context, network string) error {
	return c.Call(ctx, "network.release", map[string]string{"network": network}, nil)
}

// RequestRoute publishes a route to destination via gateway. The gateway
// address must lie inside one of the host's claimed networks.
func (c *Client) RequestRoute(ctx context.Context, gatewayAddr, destination string) (domain.Route, error) {
	var out struct {
		Route domain.Route `json:"route"`
	}
	err := c.Call(ctx, "route.request", map[string]string{
		"gateway":     gatewayAddr,
		"destination": destination,
	}, &out)
	return out.Route, err
}

// RoutingTable fetches the current routing table.
func (c *Client) RoutingTable(ctx context.Context) (domain.RoutingTable, error) {
	var out struct {
		Table domain.RoutingTable `json:"table"`
	}
	err := c.Call(ctx, "table.get", nil, &out)
	return out.Table, err
}

// AllNetworks fetches every network in the table, without host grouping.
func (c *Client) AllNetworks(ctx context.Context) ([]domain.Network, error) {
	var out struct {
		Networks []domain.Network `json:"networks"`
	}
	err := c.Call(ctx, "table.flattened", nil, &out)
	return out.Networks, err
}

// Health fetches the gateway health summary.
func (c *Client) Health(ctx context.Context) (gateway.HealthResponse, error) {
	var out gateway.HealthResponse
	err := c.Call(ctx, "health", nil, &out)
	return out, err
}

// Watch returns a channel that receives a routing-table snapshot on every
// table update. The channel is closed when the client closes. Snapshots are
// dropped rather than queued if the receiver falls behind.
func (c *Client) Watch() <-chan domain.RoutingTable {
	ch := make(chan domain.RoutingTable, 8)
	c.mu.Lock()
	if c.closed {
		close(ch)
	} else {
		c.watchers = append(c.watchers, ch)
	}
	c.mu.Unlock()
	return ch
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
