package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Mode: "local",
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Client: ClientConfig{
			GatewayURL: "ws://127.0.0.1:18790/ws",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleLevel: "info",
			ConsoleStyle: "pretty",
		},
	}
}
