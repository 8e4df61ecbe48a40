package core

import (
	"fmt"
	"strings"
	"time"
)

type ServerConfig struct {
	Host string `koanf:"host" mapstructure:"host"`
	Port int    `koanf:"port" mapstructure:"port"`
}

type AuthConfig struct {
	PathUUID  string `koanf:"path_uuid" mapstructure:"path_uuid"`
	Token     string `koanf:"token" mapstructure:"token"`
	GhostMode bool   `koanf:"ghost_mode" mapstructure:"ghost_mode"`
}

type UploadConfig struct {
	MaxSizeMB int `koanf:"max_size_mb" mapstructure:"max_size_mb"`
}

func (c UploadConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) << 20
}

type TranscriberConfig struct {
	APIKey  string        `koanf:"api_key" mapstructure:"api_key"`
	Model   string        `koanf:"model" mapstructure:"model"`
	Timeout time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type GatewayConfig struct {
	URL           string        `koanf:"url" mapstructure:"url"`
	Token         string        `koanf:"token" mapstructure:"token"`
	SessionKey    string        `koanf:"session_key" mapstructure:"session_key"`
	Timeout       time.Duration `koanf:"timeout" mapstructure:"timeout"`
	RetryAttempts int           `koanf:"retry_attempts" mapstructure:"retry_attempts"`
}

// RelayConfig configures the callback rendezvous coordinator and its
// client. SocketPath addresses the default unix transport; UseTCP opts
// into the loopback TCP transport instead (forced on platforms without
// unix sockets).
type RelayConfig struct {
	Enabled        bool          `koanf:"enabled" mapstructure:"enabled"`
	CallbackPath   string        `koanf:"callback_path" mapstructure:"callback_path"`
	CodeKeys       []string      `koanf:"code_keys" mapstructure:"code_keys"`
	SocketPath     string        `koanf:"socket_path" mapstructure:"socket_path"`
	UseTCP         bool          `koanf:"use_tcp" mapstructure:"use_tcp"`
	TCPPort        int           `koanf:"tcp_port" mapstructure:"tcp_port"`
	TCPHost        string        `koanf:"tcp_host" mapstructure:"tcp_host"`
	DefaultTimeout time.Duration `koanf:"default_timeout" mapstructure:"default_timeout"`
	LogUnmatched   bool          `koanf:"log_unmatched" mapstructure:"log_unmatched"`
}

// LedgerConfig controls the optional callback delivery audit ledger.
type LedgerConfig struct {
	Enabled   bool          `koanf:"enabled" mapstructure:"enabled"`
	Driver    string        `koanf:"driver" mapstructure:"driver"`
	DSN       string        `koanf:"dsn" mapstructure:"dsn"`
	Retention time.Duration `koanf:"retention" mapstructure:"retention"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Server      ServerConfig      `koanf:"server" mapstructure:"server"`
	Auth        AuthConfig        `koanf:"auth" mapstructure:"auth"`
	Upload      UploadConfig      `koanf:"upload" mapstructure:"upload"`
	Transcriber TranscriberConfig `koanf:"transcriber" mapstructure:"transcriber"`
	Gateway     GatewayConfig     `koanf:"gateway" mapstructure:"gateway"`
	Relay       RelayConfig       `koanf:"relay" mapstructure:"relay"`
	Ledger      LedgerConfig      `koanf:"ledger" mapstructure:"ledger"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "audio-relay",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Upload: UploadConfig{
			MaxSizeMB: 100,
		},
		Transcriber: TranscriberConfig{
			Model:   "whisper-large-v3-turbo",
			Timeout: 60 * time.Second,
		},
		Gateway: GatewayConfig{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
		},
		Relay: RelayConfig{
			CallbackPath:   "/oauth/callback",
			CodeKeys:       []string{"code", "authorization_code"},
			SocketPath:     "/tmp/audio-relay-oauth.sock",
			TCPPort:        9999,
			TCPHost:        "127.0.0.1",
			DefaultTimeout: 300 * time.Second,
			LogUnmatched:   true,
		},
		Ledger: LedgerConfig{
			Driver:    "sqlite3",
			DSN:       "file:audio-relay.db?cache=shared&_foreign_keys=on",
			Retention: 30 * 24 * time.Hour,
		},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("core: config is nil")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("core: server.port %d is out of range", c.Server.Port)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("core: upload.max_size_mb must be positive")
	}
	if c.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("core: gateway.retry_attempts must be at least 1")
	}
	if c.Relay.Enabled {
		if err := c.Relay.validate(); err != nil {
			return err
		}
	}
	if c.Ledger.Enabled {
		if err := c.Ledger.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c LedgerConfig) validate() error {
	switch c.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: ledger.driver %q is not supported", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("core: ledger.dsn is required")
	}
	if c.Retention < 0 {
		return fmt.Errorf("core: ledger.retention must not be negative")
	}
	return nil
}

func (c RelayConfig) validate() error {
	if strings.TrimSpace(c.CallbackPath) == "" || !strings.HasPrefix(c.CallbackPath, "/") {
		return fmt.Errorf("core: relay.callback_path must be an absolute path")
	}
	if len(c.CodeKeys) == 0 {
		return fmt.Errorf("core: relay.code_keys requires at least one candidate key")
	}
	if c.UseTCP {
		if c.TCPPort <= 0 || c.TCPPort > 65535 {
			return fmt.Errorf("core: relay.tcp_port %d is out of range", c.TCPPort)
		}
	} else if strings.TrimSpace(c.SocketPath) == "" {
		return fmt.Errorf("core: relay.socket_path is required for the unix transport")
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("core: relay.default_timeout must be positive")
	}
	return nil
}

// ValidateRequired enforces the startup-only settings that have no
// usable default: inbound auth and outbound credentials.
func (c *Config) ValidateRequired() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.PathUUID) == "" {
		return fmt.Errorf("core: auth.path_uuid is required")
	}
	if strings.TrimSpace(c.Auth.Token) == "" {
		return fmt.Errorf("core: auth.token is required")
	}
	if strings.TrimSpace(c.Transcriber.APIKey) == "" {
		return fmt.Errorf("core: transcriber.api_key is required")
	}
	if strings.TrimSpace(c.Gateway.URL) == "" {
		return fmt.Errorf("core: gateway.url is required")
	}
	if strings.TrimSpace(c.Gateway.Token) == "" {
		return fmt.Errorf("core: gateway.token is required")
	}
	if strings.TrimSpace(c.Gateway.SessionKey) == "" {
		return fmt.Errorf("core: gateway.session_key is required")
	}
	return nil
}
