package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
  request_timeout_seconds: 12
auth:
  enabled: true
  api_key: secret
logging:
  development: false
upstream:
  url: http://origin.internal:8081
site:
  base_url: https://www.example.com
matomo:
  timeout_seconds: 3
identity:
  mode: session
  session_key: 0123456789abcdef
pages:
  rules:
    - pattern: "^/shop/(?P<id>[^/]+)/?$"
      kind: singular
      name: Product
content_blocks:
  - selector: .mai-cca
    name_attr: data-cca-id
teams:
  - plan_id: 42
    name: Gold
dimensions:
  team: 7
memberships:
  "17": [42, 9]
overrides:
  site_id: 11
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	if cfg.Upstream.URL != "http://origin.internal:8081" {
		t.Fatalf("unexpected upstream %q", cfg.Upstream.URL)
	}
	if len(cfg.Pages.Rules) != 1 || cfg.Pages.Rules[0].Kind != page.KindSingular || cfg.Pages.Rules[0].Name != "Product" {
		t.Fatalf("expected page rule to be loaded: %+v", cfg.Pages.Rules)
	}
	if len(cfg.ContentBlocks) != 1 || cfg.ContentBlocks[0].NameAttr != "data-cca-id" {
		t.Fatalf("expected content block: %+v", cfg.ContentBlocks)
	}
	if len(cfg.Teams) != 1 || cfg.Teams[0].PlanID != 42 || cfg.Teams[0].Name != "Gold" {
		t.Fatalf("expected team table: %+v", cfg.Teams)
	}
	if cfg.Dimensions.Team != 7 {
		t.Fatalf("expected team dimension 7, got %d", cfg.Dimensions.Team)
	}
	if got := cfg.Memberships["17"]; len(got) != 2 || got[0] != 42 {
		t.Fatalf("expected memberships for user 17: %+v", cfg.Memberships)
	}
	if !cfg.Overrides.Has(options.KeySiteID) || options.Uint(cfg.Overrides[options.KeySiteID]) != 11 {
		t.Fatalf("expected site_id override from file: %+v", cfg.Overrides)
	}
	if cfg.Overrides.Has(options.KeyToken) {
		t.Fatalf("token should not be overridden")
	}
	if got := cfg.RequestTimeout(); got != 12*time.Second {
		t.Fatalf("expected request timeout 12s, got %v", got)
	}
	if got := cfg.MatomoTimeout(); got != 3*time.Second {
		t.Fatalf("expected matomo timeout 3s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "server:\n  port: 8081\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.Mode != IdentityNone {
		t.Fatalf("expected identity mode none, got %q", cfg.Identity.Mode)
	}
	if cfg.Gate.AjaxPath != "/wp-admin/admin-ajax.php" || cfg.Gate.JSONPrefix != "/wp-json/" {
		t.Fatalf("unexpected gate defaults: %+v", cfg.Gate)
	}
	if cfg.Dimensions.Team != 5 {
		t.Fatalf("expected team dimension 5, got %d", cfg.Dimensions.Team)
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", cfg.ShutdownTimeout())
	}
	if cfg.Tracing.Exporter != "none" || cfg.Tracing.SampleRatio != 1 {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("MAI_ANALYTICS", "1")
	t.Setenv("MAI_ANALYTICS_URL", "https://collector.example.com")
	t.Setenv("MATOMO_BRIDGE_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected prefixed env to set port, got %d", cfg.Server.Port)
	}
	if cfg.Overrides[options.KeyEnabled] != "1" {
		t.Fatalf("expected enabled override, got %+v", cfg.Overrides)
	}
	if cfg.Overrides[options.KeyURL] != "https://collector.example.com" {
		t.Fatalf("expected url override, got %+v", cfg.Overrides)
	}
	if cfg.Overrides.Has(options.KeyDebug) {
		t.Fatalf("debug should not be overridden")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080, RequestTimeoutSeconds: 30},
		Matomo:   MatomoConfig{TimeoutSeconds: 5},
		Identity: IdentityConfig{Mode: IdentityNone},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid request timeout", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = 0 }, want: "server.request_timeout_seconds"},
		{name: "invalid matomo timeout", mutate: func(c *Config) { c.Matomo.TimeoutSeconds = 0 }, want: "matomo.timeout_seconds"},
		{name: "auth without key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "session without key", mutate: func(c *Config) { c.Identity.Mode = IdentitySession }, want: "identity.session_key"},
		{name: "unknown identity mode", mutate: func(c *Config) { c.Identity.Mode = "ldap" }, want: "identity.mode"},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.URL = "/origin" }, want: "upstream.url"},
		{name: "negative dimension", mutate: func(c *Config) { c.Dimensions.Team = -1 }, want: "dimensions.team"},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Tracing.Exporter = "zipkin" }, want: "tracing.exporter"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "tracing.sample_ratio"},
		{name: "team without name", mutate: func(c *Config) { c.Teams = []TeamConfig{{PlanID: 1}} }, want: "teams[0].name"},
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSiteSecure(t *testing.T) {
	t.Parallel()

	if !(SiteConfig{BaseURL: "HTTPS://site.example.com"}).Secure() {
		t.Fatalf("expected https base url to be secure")
	}
	if (SiteConfig{BaseURL: "http://site.example.com"}).Secure() {
		t.Fatalf("expected http base url to be insecure")
	}
	if (SiteConfig{}).Secure() {
		t.Fatalf("expected empty base url to be insecure")
	}
}
