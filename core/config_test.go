package core

import (
	"strings"
	"testing"
	"time"
)

func validRequiredConfig() Config {
	cfg := DefaultConfig()
	cfg.Auth.PathUUID = "3f1c9a2e-7d4b-4a6f-9e8c-1b2d3e4f5a6b"
	cfg.Auth.Token = "upload-token"
	cfg.Transcriber.APIKey = "gsk-test"
	cfg.Gateway.URL = "http://127.0.0.1:18789/tools/invoke"
	cfg.Gateway.Token = "gw-token"
	cfg.Gateway.SessionKey = "main"
	return cfg
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"blank service name", func(c *Config) { c.ServiceName = " " }, "service_name"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero upload size", func(c *Config) { c.Upload.MaxSizeMB = 0 }, "max_size_mb"},
		{"zero retry attempts", func(c *Config) { c.Gateway.RetryAttempts = 0 }, "retry_attempts"},
		{
			"relay enabled without code keys",
			func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.CodeKeys = nil
			},
			"code_keys",
		},
		{
			"relay relative callback path",
			func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.CallbackPath = "oauth/callback"
			},
			"callback_path",
		},
		{
			"relay tcp port out of range",
			func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.UseTCP = true
				c.Relay.TCPPort = -1
			},
			"tcp_port",
		},
		{
			"relay unix without socket path",
			func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.SocketPath = ""
			},
			"socket_path",
		},
		{
			"relay non-positive timeout",
			func(c *Config) {
				c.Relay.Enabled = true
				c.Relay.DefaultTimeout = 0
			},
			"default_timeout",
		},
		{
			"ledger unknown driver",
			func(c *Config) {
				c.Ledger.Enabled = true
				c.Ledger.Driver = "mysql"
			},
			"ledger.driver",
		},
		{
			"ledger missing dsn",
			func(c *Config) {
				c.Ledger.Enabled = true
				c.Ledger.DSN = " "
			},
			"ledger.dsn",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestConfig_DisabledSectionsSkipValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.CodeKeys = nil
	cfg.Ledger.Driver = "mysql"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled sections should not be validated: %v", err)
	}
}

func TestConfig_ValidateRequired(t *testing.T) {
	cfg := validRequiredConfig()
	if err := cfg.ValidateRequired(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing path uuid", func(c *Config) { c.Auth.PathUUID = "" }},
		{"missing auth token", func(c *Config) { c.Auth.Token = "" }},
		{"missing api key", func(c *Config) { c.Transcriber.APIKey = "" }},
		{"missing gateway url", func(c *Config) { c.Gateway.URL = "" }},
		{"missing gateway token", func(c *Config) { c.Gateway.Token = "" }},
		{"missing session key", func(c *Config) { c.Gateway.SessionKey = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validRequiredConfig()
			tc.mutate(&cfg)
			if err := cfg.ValidateRequired(); err == nil {
				t.Fatal("expected error for missing required setting")
			}
		})
	}
}

func TestUploadConfig_MaxSizeBytes(t *testing.T) {
	cfg := UploadConfig{MaxSizeMB: 100}
	if got := cfg.MaxSizeBytes(); got != 100<<20 {
		t.Fatalf("MaxSizeBytes = %d", got)
	}
}

func TestDefaultConfig_RelayDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Relay.CallbackPath != "/oauth/callback" {
		t.Fatalf("callback path = %q", cfg.Relay.CallbackPath)
	}
	if len(cfg.Relay.CodeKeys) != 2 || cfg.Relay.CodeKeys[0] != "code" {
		t.Fatalf("code keys = %v", cfg.Relay.CodeKeys)
	}
	if cfg.Relay.DefaultTimeout != 300*time.Second {
		t.Fatalf("default timeout = %v", cfg.Relay.DefaultTimeout)
	}
	if cfg.Relay.Enabled {
		t.Fatal("relay should be opt-in")
	}
}
