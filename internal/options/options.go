// Package options models the collector settings and resolves the effective
// values from persisted storage and environment overrides.
package options

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Option keys as they appear in storage, in the settings form, and in config files.
const (
	KeyEnabled       = "enabled"
	KeyEnabledAdmin  = "enabled_admin"
	KeyDebug         = "debug"
	KeySiteID        = "site_id"
	KeyURL           = "url"
	KeyToken         = "token"
	KeyViewsDays     = "views_days"
	KeyTrendingDays  = "trending_days"
	KeyViewsInterval = "views_interval"
)

// Keys lists every recognised option key in form order.
var Keys = []string{
	KeyEnabled,
	KeyEnabledAdmin,
	KeyDebug,
	KeySiteID,
	KeyURL,
	KeyToken,
	KeyViewsDays,
	KeyTrendingDays,
	KeyViewsInterval,
}

// Options is the sanitised, effective set of collector settings.
type Options struct {
	Enabled       bool   `json:"enabled"`
	EnabledAdmin  bool   `json:"enabled_admin"`
	Debug         bool   `json:"debug"`
	SiteID        uint64 `json:"site_id"`
	URL           string `json:"url"`
	Token         string `json:"token"`
	ViewsDays     uint64 `json:"views_days"`
	TrendingDays  uint64 `json:"trending_days"`
	ViewsInterval uint64 `json:"views_interval"`
}

// Configured reports whether the options carry everything a tracker needs.
func (o Options) Configured() bool {
	return o.Enabled && o.SiteID > 0 && o.URL != "" && o.Token != ""
}

// Raw holds unsanitised option values keyed by option name, as read from
// storage, a form post, or the environment.
type Raw map[string]any

// Clone returns a shallow copy of r.
func (r Raw) Clone() Raw {
	out := make(Raw, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Raw converts sanitised options back into their raw form.
func (o Options) Raw() Raw {
	return Raw{
		KeyEnabled:       o.Enabled,
		KeyEnabledAdmin:  o.EnabledAdmin,
		KeyDebug:         o.Debug,
		KeySiteID:        o.SiteID,
		KeyURL:           o.URL,
		KeyToken:         o.Token,
		KeyViewsDays:     o.ViewsDays,
		KeyTrendingDays:  o.TrendingDays,
		KeyViewsInterval: o.ViewsInterval,
	}
}

// Defaults returns the built-in defaults. A default takes the override value
// when one is defined so that a form post missing a locked field keeps it.
func Defaults(ov Overrides) Raw {
	raw := Raw{
		KeyEnabled:       false,
		KeyEnabledAdmin:  false,
		KeyDebug:         false,
		KeySiteID:        0,
		KeyURL:           "",
		KeyToken:         "",
		KeyViewsDays:     0,
		KeyTrendingDays:  0,
		KeyViewsInterval: 0,
	}
	for key, value := range ov {
		raw[key] = value
	}
	return raw
}

// Sanitize fills missing keys from defaults and coerces every field to its
// canonical type.
func Sanitize(raw Raw, defaults Raw) Options {
	merged := defaults.Clone()
	for k, v := range raw {
		merged[k] = v
	}
	return Options{
		Enabled:       Bool(merged[KeyEnabled]),
		EnabledAdmin:  Bool(merged[KeyEnabledAdmin]),
		Debug:         Bool(merged[KeyDebug]),
		SiteID:        Uint(merged[KeySiteID]),
		URL:           URL(merged[KeyURL]),
		Token:         Token(merged[KeyToken]),
		ViewsDays:     Uint(merged[KeyViewsDays]),
		TrendingDays:  Uint(merged[KeyTrendingDays]),
		ViewsInterval: Uint(merged[KeyViewsInterval]),
	}
}

// Bool coerces v to a strict boolean.
func Bool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no", "off":
			return false
		}
		return true
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return false
		}
		return f != 0
	}
}

// Uint coerces v to a non-negative integer no larger than math.MaxInt64.
// Negative values are flipped, out-of-range values saturate, and anything
// unparsable becomes zero.
func Uint(v any) uint64 {
	switch t := v.(type) {
	case nil:
		return 0
	case uint64:
		return min(t, math.MaxInt64)
	case uint:
		return min(uint64(t), math.MaxInt64)
	case uint32:
		return uint64(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return absInt(n)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return absFloat(f)
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0
		}
		return absFloat(f)
	}
}

func absInt(n int64) uint64 {
	switch {
	case n == math.MinInt64:
		return math.MaxInt64
	case n < 0:
		return uint64(-n)
	default:
		return uint64(n)
	}
}

func absFloat(f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Abs(f)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return uint64(f)
}

// URL normalises v to an absolute http(s) URL ending with a slash. Anything
// that cannot be made into one becomes the empty string.
func URL(v any) string {
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "?") {
			return ""
		}
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.RawQuery = ""
	out := u.String()
	if !strings.HasSuffix(out, "/") {
		out += "/"
	}
	return out
}

// Token keeps only lower-case alphanumerics, dashes, and underscores.
func Token(v any) string {
	s := strings.ToLower(cast.ToString(v))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
