package config

import (
	"fmt"
	"net/netip"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validModes := []string{"local", "remote"}
	if cfg.Gateway.Mode != "" && !slices.Contains(validModes, cfg.Gateway.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validModes, cfg.Gateway.Mode),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom", "tailnet"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.certPath",
				Message: "required when TLS is enabled",
			})
		}
		if cfg.Gateway.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.keyPath",
				Message: "required when TLS is enabled",
			})
		}
	}

	// Router validation
	if cfg.Router.MaxNetworksPerHost < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "router.maxNetworksPerHost",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Router.MaxNetworksPerHost),
		})
	}
	for i, pool := range cfg.Router.AllowedPools {
		pfx, err := netip.ParsePrefix(pool)
		if err != nil {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("router.allowedPools[%d]", i),
				Message: fmt.Sprintf("invalid CIDR %q", pool),
			})
			continue
		}
		if !pfx.Addr().Is4() {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("router.allowedPools[%d]", i),
				Message: fmt.Sprintf("only IPv4 pools are supported, got %q", pool),
			})
		}
	}

	// Store validation
	validBackends := []string{"sqlite", "memory"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	if cfg.Logging.ConsoleLevel != "" && !slices.Contains(validLogLevels, cfg.Logging.ConsoleLevel) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleLevel",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.ConsoleLevel),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// IRC announcer validation (only if configured)
	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	return issues
}
