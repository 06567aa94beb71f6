package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":8181"
  base_url: "https://go.example.com"
  trusted_proxies: ["10.0.0.0/8", "192.0.2.10"]

database:
  path: "/tmp/walink-test.db"

auth:
  session_ttl: 12h
  api_key: "test-api-key"

rotation:
  default_strategy: "weighted"

analytics:
  retention_days: 30
  cleanup_interval: 30m

rate_limit:
  enabled: true
  per_ip:
    clicks_per_hour: 20
    clicks_per_day: 100

events:
  enabled: true
  url: "amqp://user:pass@mq:5672/"
  exchange: "clicks"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8181" {
		t.Errorf("Server.ListenAddr = %v, want :8181", cfg.Server.ListenAddr)
	}
	if cfg.Server.BaseURL != "https://go.example.com" {
		t.Errorf("Server.BaseURL = %v, want https://go.example.com", cfg.Server.BaseURL)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.0.2.10" {
		t.Errorf("Server.TrustedProxies = %v, want [10.0.0.0/8 192.0.2.10]", cfg.Server.TrustedProxies)
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("Auth.SessionTTL = %v, want 12h", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.APIKey != "test-api-key" {
		t.Errorf("Auth.APIKey = %v, want test-api-key", cfg.Auth.APIKey)
	}
	if cfg.Rotation.DefaultStrategy != "weighted" {
		t.Errorf("Rotation.DefaultStrategy = %v, want weighted", cfg.Rotation.DefaultStrategy)
	}
	if cfg.Analytics.RetentionDays != 30 {
		t.Errorf("Analytics.RetentionDays = %v, want 30", cfg.Analytics.RetentionDays)
	}
	if cfg.Analytics.CleanupInterval != 30*time.Minute {
		t.Errorf("Analytics.CleanupInterval = %v, want 30m", cfg.Analytics.CleanupInterval)
	}
	if cfg.RateLimit.PerIP == nil || cfg.RateLimit.PerIP.ClicksPerHour != 20 {
		t.Errorf("RateLimit.PerIP = %+v, want clicks_per_hour 20", cfg.RateLimit.PerIP)
	}
	if cfg.Events.Exchange != "clicks" {
		t.Errorf("Events.Exchange = %v, want clicks", cfg.Events.Exchange)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("Server.ListenAddr = %v, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Database.Path != "/var/lib/walink/walink.db" {
		t.Errorf("Database.Path = %v, want /var/lib/walink/walink.db", cfg.Database.Path)
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("Auth.SessionTTL = %v, want 24h", cfg.Auth.SessionTTL)
	}
	if cfg.Rotation.DefaultStrategy != "round-robin" {
		t.Errorf("Rotation.DefaultStrategy = %v, want round-robin", cfg.Rotation.DefaultStrategy)
	}
	if cfg.Analytics.RetentionDays != 90 {
		t.Errorf("Analytics.RetentionDays = %v, want 90", cfg.Analytics.RetentionDays)
	}
	if cfg.Database.StatePath != "/var/lib/walink/state.db" {
		t.Errorf("Database.StatePath = %v, want /var/lib/walink/state.db", cfg.Database.StatePath)
	}
	if cfg.RateLimit.FlushInterval != 10*time.Second {
		t.Errorf("RateLimit.FlushInterval = %v, want 10s", cfg.RateLimit.FlushInterval)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Events.RetryAttempts != 5 {
		t.Errorf("Events.RetryAttempts = %v, want 5", cfg.Events.RetryAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "invalid strategy",
			mutate:  func(c *Config) { c.Rotation.DefaultStrategy = "sticky" },
			wantErr: true,
		},
		{
			name:    "retention below one week",
			mutate:  func(c *Config) { c.Analytics.RetentionDays = 3 },
			wantErr: true,
		},
		{
			name:    "base url without scheme",
			mutate:  func(c *Config) { c.Server.BaseURL = "go.example.com" },
			wantErr: true,
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.Server.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"} },
			wantErr: true,
		},
		{
			name: "acme without domains",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
				c.Server.TLS.ACME.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "acme with domains",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
				c.Server.TLS.ACME.Enabled = true
				c.Server.TLS.ACME.Domains = []string{"go.example.com"}
			},
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.PerGroup = &LimitValues{ClicksPerHour: -1} },
			wantErr: true,
		},
		{
			name: "events enabled without url",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.URL = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasTLS(t *testing.T) {
	cfg := Default()
	if cfg.HasTLS() {
		t.Error("HasTLS() = true for default config")
	}
	cfg.Server.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem", KeyFile: "key.pem"}
	if !cfg.HasTLS() {
		t.Error("HasTLS() = false with cert and key")
	}
	if cfg.HasACME() {
		t.Error("HasACME() = true without acme section")
	}

	cfg.Server.TLS = TLSConfig{Enabled: true, ACME: ACMEConfig{Enabled: true, Domains: []string{"go.example.com"}}}
	if !cfg.HasTLS() || !cfg.HasACME() {
		t.Error("ACME must enable TLS")
	}

	cfg.Server.TLS.Enabled = false
	if cfg.HasTLS() || cfg.HasACME() {
		t.Error("disabled TLS must ignore the acme section")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
