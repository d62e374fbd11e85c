// Package notify announces routing-table changes to operators over IRC.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/lrstanley/girc"

	"github.com/routelab/iprouted/internal/config"
	"github.com/routelab/iprouted/internal/hooks"
	"github.com/routelab/iprouted/internal/logging"
)

// Announcer posts one-line notices about host and network changes to the
// configured IRC channels.
type Announcer struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	running bool
	lastErr string
}

// NewAnnouncer creates an IRC announcer from configuration.
func NewAnnouncer(cfg config.IRCConfig, log *logging.Logger) *Announcer {
	return &Announcer{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

// Register subscribes the announcer to the hook events it reports on.
func (a *Announcer) Register(hm *hooks.Manager) {
	hm.On(hooks.EventHostJoined, "irc-announcer", a.onHostJoined)
	hm.On(hooks.EventHostLeft, "irc-announcer", a.onHostLeft)
	hm.On(hooks.EventNetworkRequested, "irc-announcer", a.onNetworkRequested)
	hm.On(hooks.EventNetworkReleased, "irc-announcer", a.onNetworkReleased)
	hm.On(hooks.EventRouteRequested, "irc-announcer", a.onRouteRequested)
}

// Connected reports whether the IRC connection is up.
func (a *Announcer) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil && a.client.IsConnected()
}

// Start connects to the IRC server. It blocks until the context is
// cancelled or the connection fails.
func (a *Announcer) Start(ctx context.Context) error {
	port := a.cfg.Port
	if port == 0 {
		if a.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  a.cfg.Server,
		Port:    port,
		Nick:    a.cfg.Nick,
		User:    a.cfg.Nick,
		Name:    "iprouted announcer",
		SSL:     a.cfg.UseTLS,
		Version: "iprouted/1.0",
	}

	if a.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{
			ServerName: a.cfg.Server,
		}
	}

	if a.cfg.SASL && a.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{
			User: a.cfg.Nick,
			Pass: a.cfg.Password,
		}
	} else if a.cfg.Password != "" {
		gircCfg.ServerPass = a.cfg.Password
	}

	a.client = girc.New(gircCfg)
	a.client.Handlers.Add(girc.CONNECTED, a.onConnected)

	a.mu.Lock()
	a.running = true
	a.lastErr = ""
	a.mu.Unlock()

	a.log.Info().
		Str("server", a.cfg.Server).
		Int("port", port).
		Str("nick", a.cfg.Nick).
		Strs("channels", a.cfg.Channels).
		Bool("tls", a.cfg.UseTLS).
		Msg("connecting to IRC")

	// Run connection in a goroutine — Connect() blocks
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.client.Connect()
	}()

	select {
	case err := <-errCh:
		a.mu.Lock()
		a.running = false
		if err != nil {
			a.lastErr = err.Error()
		}
		a.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.client.Close()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (a *Announcer) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil && a.client.IsConnected() {
		a.log.Info().Msg("disconnecting from IRC")
		a.client.Quit("iprouted shutting down")
	}
	a.running = false
	return nil
}

func (a *Announcer) onConnected(_ *girc.Client, e girc.Event) {
	a.log.Info().Str("nick", a.client.GetNick()).Msg("connected to IRC")

	for _, ch := range a.cfg.Channels {
		a.log.Info().Str("channel", ch).Msg("joining channel")
		a.client.Cmd.Join(ch)
	}
}

// announce posts a notice to every configured channel. Dropped silently
// when the connection is down; announcements are best effort.
func (a *Announcer) announce(text string) {
	if !a.Connected() {
		a.log.Debug().Str("text", text).Msg("not connected, dropping announcement")
		return
	}
	for _, ch := range a.cfg.Channels {
		a.client.Cmd.Message(ch, text)
	}
}

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return "?"
}

func (a *Announcer) onHostJoined(ctx context.Context, p hooks.Payload) error {
	a.announce(fmt.Sprintf("host %s joined the routing table", str(p.Data, "host")))
	return nil
}

func (a *Announcer) onHostLeft(ctx context.Context, p hooks.Payload) error {
	a.announce(fmt.Sprintf("host %s left, its networks were released", str(p.Data, "host")))
	return nil
}

func (a *Announcer) onNetworkRequested(ctx context.Context, p hooks.Payload) error {
	a.announce(fmt.Sprintf("%s claimed %s (gateway %s)",
		str(p.Data, "host"), str(p.Data, "network"), str(p.Data, "gateway")))
	return nil
}

func (a *Announcer) onNetworkReleased(ctx context.Context, p hooks.Payload) error {
	a.announce(fmt.Sprintf("%s released %s", str(p.Data, "host"), str(p.Data, "network")))
	return nil
}

func (a *Announcer) onRouteRequested(ctx context.Context, p hooks.Payload) error {
	a.announce(fmt.Sprintf("%s published route %s via %s",
		str(p.Data, "host"), str(p.Data, "destination"), str(p.Data, "gateway")))
	return nil
}
