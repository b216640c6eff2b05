// Package config loads and validates bridge configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/matomo-bridge/internal/annotate"
	"github.com/JakeFAU/matomo-bridge/internal/gate"
	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
)

// EnvPrefix namespaces every environment variable read by Load, except the
// fixed option overrides.
const EnvPrefix = "MATOMO_BRIDGE"

// Identity modes.
const (
	IdentityNone    = "none"
	IdentitySession = "session"
	IdentityHeader  = "header"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	DB            DBConfig           `mapstructure:"db"`
	Site          SiteConfig         `mapstructure:"site"`
	Upstream      UpstreamConfig     `mapstructure:"upstream"`
	Matomo        MatomoConfig       `mapstructure:"matomo"`
	Tracing       TracingConfig      `mapstructure:"tracing"`
	Identity      IdentityConfig     `mapstructure:"identity"`
	Gate          GateConfig         `mapstructure:"gate"`
	Pages         PagesConfig        `mapstructure:"pages"`
	ContentBlocks []annotate.Block   `mapstructure:"content_blocks"`
	Teams         []TeamConfig       `mapstructure:"teams"`
	Dimensions    DimensionsConfig   `mapstructure:"dimensions"`
	Memberships   map[string][]int64 `mapstructure:"memberships"`

	// Overrides holds the option overrides defined by the environment or the
	// overrides section of the config file.
	Overrides options.Overrides `mapstructure:"-"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles for the admin routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to the relational database. An empty DSN keeps
// everything in memory.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SiteConfig describes the public site.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// Secure reports whether the public site is served over HTTPS.
func (s SiteConfig) Secure() bool {
	return strings.HasPrefix(strings.ToLower(s.BaseURL), "https://")
}

// UpstreamConfig points the reverse proxy at the origin site.
type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

// MatomoConfig tunes outbound collector calls.
type MatomoConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// TracingConfig selects the span exporter and the sampled share of traces.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// IdentityConfig selects how the logged-in user is discovered.
type IdentityConfig struct {
	Mode        string `mapstructure:"mode"`
	SessionName string `mapstructure:"session_name"`
	SessionKey  string `mapstructure:"session_key"`
	UserHeader  string `mapstructure:"user_header"`
	EmailHeader string `mapstructure:"email_header"`
	LoginHeader string `mapstructure:"login_header"`
}

// GateConfig names the request paths that are never tracked or are admin-only.
type GateConfig struct {
	AjaxPath    string `mapstructure:"ajax_path"`
	JSONPrefix  string `mapstructure:"json_prefix"`
	AdminPrefix string `mapstructure:"admin_prefix"`
}

// PagesConfig lists page classification rules; empty uses the defaults.
type PagesConfig struct {
	Rules []page.Rule `mapstructure:"rules"`
}

// TeamConfig maps a membership plan to a team name.
type TeamConfig struct {
	PlanID int64  `mapstructure:"plan_id"`
	Name   string `mapstructure:"name"`
}

// DimensionsConfig assigns custom dimension ids.
type DimensionsConfig struct {
	Team int `mapstructure:"team"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindOverrides(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Overrides = readOverrides(v)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("matomo.timeout_seconds", 5)
	v.SetDefault("matomo.rate_limit_rps", 0)
	v.SetDefault("matomo.rate_limit_burst", 10)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("identity.mode", IdentityNone)
	v.SetDefault("identity.session_name", "matomo_bridge")
	v.SetDefault("identity.user_header", "X-User-Id")
	v.SetDefault("identity.email_header", "X-User-Email")
	v.SetDefault("identity.login_header", "X-User-Logged-In")
	v.SetDefault("gate.ajax_path", gate.DefaultClassifier.AjaxPath)
	v.SetDefault("gate.json_prefix", gate.DefaultClassifier.JSONPrefix)
	v.SetDefault("gate.admin_prefix", gate.DefaultClassifier.AdminPrefix)
	v.SetDefault("dimensions.team", 5)
}

func overrideKey(key string) string {
	return "overrides." + key
}

// bindOverrides maps the fixed override names onto overrides.* keys. The
// names are bound verbatim, without the service prefix.
func bindOverrides(v *viper.Viper) error {
	for _, ov := range options.OverrideNames {
		if err := v.BindEnv(overrideKey(ov.Key), ov.Env); err != nil {
			return fmt.Errorf("bind override %s: %w", ov.Env, err)
		}
	}
	return nil
}

func readOverrides(v *viper.Viper) options.Overrides {
	out := options.Overrides{}
	for _, ov := range options.OverrideNames {
		key := overrideKey(ov.Key)
		if v.IsSet(key) {
			out[ov.Key] = v.Get(key)
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Matomo.TimeoutSeconds <= 0 {
		return fmt.Errorf("matomo.timeout_seconds must be > 0")
	}
	if c.Matomo.RateLimitRPS < 0 {
		return fmt.Errorf("matomo.rate_limit_rps must be >= 0")
	}
	switch c.Tracing.Exporter {
	case "", "none", "log":
	default:
		return fmt.Errorf("tracing.exporter must be one of none, log; got %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Identity.Mode {
	case IdentityNone, IdentityHeader:
	case IdentitySession:
		if c.Identity.SessionKey == "" {
			return fmt.Errorf("identity.session_key must be set when identity.mode is %q", IdentitySession)
		}
	default:
		return fmt.Errorf("identity.mode must be one of none, session, header; got %q", c.Identity.Mode)
	}
	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream.url must be an absolute URL")
		}
	}
	if c.Dimensions.Team < 0 {
		return fmt.Errorf("dimensions.team must be >= 0")
	}
	for i, block := range c.ContentBlocks {
		if block.Selector == "" || block.NameAttr == "" {
			return fmt.Errorf("content_blocks[%d] needs selector and name_attr", i)
		}
	}
	for i, team := range c.Teams {
		if team.Name == "" {
			return fmt.Errorf("teams[%d].name must be set", i)
		}
	}
	return nil
}

// RequestTimeout returns the per-request handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// MatomoTimeout returns the budget for one collector call.
func (c Config) MatomoTimeout() time.Duration {
	return time.Duration(c.Matomo.TimeoutSeconds) * time.Second
}
