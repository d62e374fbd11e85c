package config

// Config is the root configuration for iprouted.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Router  RouterConfig  `yaml:"router,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Client  ClientConfig  `yaml:"client,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Mode           string      `yaml:"mode,omitempty"` // "local" | "remote"
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom" | "tailnet"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// RouterConfig controls routing-table policy.
type RouterConfig struct {
	// MaxNetworksPerHost caps how many networks a single host may claim.
	// Zero means unlimited.
	MaxNetworksPerHost int `yaml:"maxNetworksPerHost,omitempty"`
	// AllowedPools restricts claimable networks to these CIDRs. Empty
	// means any IPv4 network may be claimed.
	AllowedPools []string `yaml:"allowedPools,omitempty"`
}

// StoreConfig selects the routing-table persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "memory"
	Path    string `yaml:"path,omitempty"`    // sqlite file; defaults to <data>/iprouted.db
}

// ClientConfig holds defaults for requirer-side commands.
type ClientConfig struct {
	GatewayURL string `yaml:"gatewayUrl,omitempty"` // ex: "ws://127.0.0.1:18790/ws"
	Token      string `yaml:"token,omitempty"`
	Host       string `yaml:"host,omitempty"` // host name registered in the table
}

// NotifyConfig configures topology-change announcements.
type NotifyConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC announcer settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleLevel string `yaml:"consoleLevel,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
