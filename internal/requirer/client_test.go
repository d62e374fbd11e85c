package requirer

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/iprouted/internal/config"
	"github.com/routelab/iprouted/internal/gateway"
	"github.com/routelab/iprouted/internal/hooks"
	"github.com/routelab/iprouted/internal/logging"
	"github.com/routelab/iprouted/internal/routetable"
	"github.com/routelab/iprouted/internal/store"
)

const testToken = "test-token-123"

func testGateway(t *testing.T) string {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken

	log := logging.New(nil, "silent")
	h := hooks.NewManager(log)
	router, err := routetable.NewManager(store.NewMemoryRouteStore(), h, log, routetable.Policy{})
	require.NoError(t, err)

	srv := gateway.New(cfg, router, log, gateway.WithHooks(h))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialHost(t *testing.T, url, host string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		GatewayURL: url,
		Token:      testToken,
		Host:       host,
		Mode:       "host",
	}, logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func dialObserver(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		GatewayURL: url,
		Token:      testToken,
	}, logging.New(nil, "silent"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial_Handshake(t *testing.T) {
	url := testGateway(t)
	c := dialObserver(t, url)

	hello := c.Hello()
	assert.Equal(t, gateway.ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "table.get")
}

func TestDial_BadToken(t *testing.T) {
	url := testGateway(t)

	_, err := Dial(context.Background(), Config{
		GatewayURL: url,
		Token:      "wrong",
	}, logging.New(nil, "silent"))
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "unauthorized", rpcErr.Code)
}

func TestDial_HostModeRequiresName(t *testing.T) {
	_, err := Dial(context.Background(), Config{
		GatewayURL: "ws://127.0.0.1:1/ws",
		Mode:       "host",
	}, logging.New(nil, "silent"))
	assert.Error(t, err)
}

func TestHostAppearsInTable(t *testing.T) {
	url := testGateway(t)
	dialHost(t, url, "web/0")

	observer := dialObserver(t, url)
	table, err := observer.RoutingTable(context.Background())
	require.NoError(t, err)
	require.Contains(t, table, "web/0")
	assert.Empty(t, table["web/0"].Networks)
}

func TestRequestNetwork(t *testing.T) {
	url := testGateway(t)
	c := dialHost(t, url, "web/0")

	n, err := c.RequestNetwork(context.Background(), "192.168.250.14/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.250.0/24", n.Network)
	assert.Equal(t, "192.168.250.14", n.Gateway)
}

func TestRequestNetwork_Conflict(t *testing.T) {
	url := testGateway(t)
	web := dialHost(t, url, "web/0")
	db := dialHost(t, url, "db/0")

	_, err := web.RequestNetwork(context.Background(), "192.168.250.1/24")
	require.NoError(t, err)

	_, err = db.RequestNetwork(context.Background(), "192.168.250.2/24")
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "network_taken", rpcErr.Code)
}

func TestRequestRoute(t *testing.T) {
	url := testGateway(t)
	c := dialHost(t, url, "web/0")
	ctx := context.Background()

	_, err := c.RequestNetwork(ctx, "192.168.250.1/24")
	require.NoError(t, err)

	r, err := c.RequestRoute(ctx, "192.168.250.3", "172.16.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.0/16", r.Destination)
	assert.Equal(t, "192.168.250.3", r.Gateway)

	table, err := c.RoutingTable(ctx)
	require.NoError(t, err)
	require.Len(t, table["web/0"].Networks, 1)
	require.Len(t, table["web/0"].Networks[0].Routes, 1)
}

func TestRequestRoute_GatewayOutside(t *testing.T) {
	url := testGateway(t)
	c := dialHost(t, url, "web/0")
	ctx := context.Background()

	_, err := c.RequestNetwork(ctx, "192.168.250.1/24")
	require.NoError(t, err)

	_, err = c.RequestRoute(ctx, "10.0.0.1", "172.16.0.0/16")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "gateway_not_in_network", rpcErr.Code)
}

func TestReleaseNetwork(t *testing.T) {
	url := testGateway(t)
	c := dialHost(t, url, "web/0")
	ctx := context.Background()

	_, err := c.RequestNetwork(ctx, "192.168.250.1/24")
	require.NoError(t, err)

	require.NoError(t, c.ReleaseNetwork(ctx, "192.168.250.0/24"))

	table, err := c.RoutingTable(ctx)
	require.NoError(t, err)
	assert.Empty(t, table["web/0"].Networks)
}

func TestAllNetworks(t *testing.T) {
	url := testGateway(t)
	web := dialHost(t, url, "web/0")
	db := dialHost(t, url, "db/0")
	ctx := context.Background()

	_, err := web.RequestNetwork(ctx, "192.168.250.1/24")
	require.NoError(t, err)
	_, err = db.RequestNetwork(ctx, "10.0.0.1/24")
	require.NoError(t, err)

	networks, err := web.AllNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, networks, 2)
}

func TestHealth(t *testing.T) {
	url := testGateway(t)
	c := dialObserver(t, url)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

func TestWatch_ReceivesTableUpdates(t *testing.T) {
	url := testGateway(t)
	observer := dialObserver(t, url)
	updates := observer.Watch()

	host := dialHost(t, url, "web/0")
	_, err := host.RequestNetwork(context.Background(), "192.168.250.1/24")
	require.NoError(t, err)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case table, ok := <-updates:
			require.True(t, ok, "watch channel closed early")
			if entry, found := table["web/0"]; found && len(entry.Networks) > 0 {
				assert.Equal(t, "192.168.250.0/24", entry.Networks[0].Network)
				return
			}
		case <-timeout:
			t.Fatal("no table update with the claimed network")
		}
	}
}

func TestWatch_ClosedOnDisconnect(t *testing.T) {
	url := testGateway(t)
	c := dialObserver(t, url)
	updates := c.Watch()

	require.NoError(t, c.Close())

	select {
	case _, ok := <-updates:
		if ok {
			// Drain any buffered snapshot; the close comes after.
			for range updates {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestCall_AfterClose(t *testing.T) {
	url := testGateway(t)
	c := dialObserver(t, url)
	require.NoError(t, c.Close())

	_, err := c.RoutingTable(context.Background())
	assert.True(t, errors.Is(err, ErrClosed) || err != nil)
}

func TestHostRemovedWhenClientCloses(t *testing.T) {
	url := testGateway(t)
	observer := dialObserver(t, url)

	host := dialHost(t, url, "web/0")
	require.NoError(t, host.Close())

	require.Eventually(t, func() bool {
		table, err := observer.RoutingTable(context.Background())
		if err != nil {
			return false
		}
		_, ok := table["web/0"]
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}
