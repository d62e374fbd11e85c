package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_BadPort(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Port = 70000
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.port")
}

func TestValidate_BadBind(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Bind = "everywhere"
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.bind")
}

func TestValidate_BadAuthMode(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Auth.Mode = "magic"
	assert.Contains(t, issuePaths(Validate(&cfg)), "gateway.auth.mode")
}

func TestValidate_TLSRequiresPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.TLS.Enabled = true

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "gateway.tls.certPath")
	assert.Contains(t, paths, "gateway.tls.keyPath")
}

func TestValidate_RouterPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Router.MaxNetworksPerHost = -1
	cfg.Router.AllowedPools = []string{"not-a-cidr", "fd00::/8", "10.0.0.0/8"}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "router.maxNetworksPerHost")
	assert.Contains(t, paths, "router.allowedPools[0]")
	assert.Contains(t, paths, "router.allowedPools[1]")
	assert.NotContains(t, paths, "router.allowedPools[2]")
}

func TestValidate_BadStoreBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "postgres"
	assert.Contains(t, issuePaths(Validate(&cfg)), "store.backend")
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.level")
}

func TestValidate_IRCAnnouncer(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{
		SASL: true,
	}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "notify.irc.server")
	assert.Contains(t, paths, "notify.irc.nick")
	assert.Contains(t, paths, "notify.irc.sasl")
}

func TestValidate_IRCAnnouncerValid(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{
		Server:   "irc.libera.chat",
		Nick:     "iprouted",
		Channels: []string{"#netops"},
		UseTLS:   true,
	}
	assert.Empty(t, Validate(&cfg))
}
