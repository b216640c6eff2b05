package options

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeCoercesFields(t *testing.T) {
	t.Parallel()

	opts := Sanitize(Raw{
		KeyEnabled:       "enabled",
		KeyEnabledAdmin:  "false",
		KeyDebug:         float64(1),
		KeySiteID:        "-7",
		KeyURL:           " analytics.example.com/matomo ",
		KeyToken:         "AbC-12_3!@#",
		KeyViewsDays:     "30",
		KeyTrendingDays:  "nope",
		KeyViewsInterval: float64(-15),
	}, Defaults(nil))

	require.True(t, opts.Enabled)
	require.False(t, opts.EnabledAdmin)
	require.True(t, opts.Debug)
	require.Equal(t, uint64(7), opts.SiteID)
	require.Equal(t, "http://analytics.example.com/matomo/", opts.URL)
	require.Equal(t, "abc-12_3", opts.Token)
	require.Equal(t, uint64(30), opts.ViewsDays)
	require.Equal(t, uint64(0), opts.TrendingDays)
	require.Equal(t, uint64(15), opts.ViewsInterval)
}

func TestSanitizeFillsMissingKeysFromDefaults(t *testing.T) {
	t.Parallel()

	opts := Sanitize(Raw{KeySiteID: 3}, Defaults(Overrides{KeyEnabled: "1"}))

	require.True(t, opts.Enabled)
	require.Equal(t, uint64(3), opts.SiteID)
	require.Empty(t, opts.URL)
}

func TestUintSaturates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want uint64
	}{
		{"-9223372036854775808", math.MaxInt64},
		{"99999999999999999999", math.MaxInt64},
		{"1e30", math.MaxInt64},
		{-1e30, math.MaxInt64},
		{math.Inf(1), math.MaxInt64},
		{math.NaN(), 0},
		{uint64(math.MaxUint64), math.MaxInt64},
		{"-12", 12},
		{"3.9", 3},
		{int64(-5), 5},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Uint(tc.in), "%v", tc.in)
	}
}

func TestURLNormalisation(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                  "",
		"https://stats.example.com":         "https://stats.example.com/",
		"https://stats.example.com/":        "https://stats.example.com/",
		"https://stats.example.com/m?x=1#f": "https://stats.example.com/m/",
		"ftp://stats.example.com":           "",
		"/relative/path":                    "",
		"javascript:alert(1)":               "",
	}
	for in, want := range cases {
		require.Equal(t, want, URL(in), "input %q", in)
	}
}

func TestBoolCoercion(t *testing.T) {
	t.Parallel()

	truthy := []any{true, "1", "yes", "enabled", "TRUE", 2, int64(1)}
	falsy := []any{nil, false, "", "0", "false", "Off", " no ", 0, float64(0)}
	for _, v := range truthy {
		require.True(t, Bool(v), "value %#v", v)
	}
	for _, v := range falsy {
		require.False(t, Bool(v), "value %#v", v)
	}
}

func TestConfigured(t *testing.T) {
	t.Parallel()

	full := Options{Enabled: true, SiteID: 1, URL: "https://m.example.com/", Token: "abc"}
	require.True(t, full.Configured())

	missing := full
	missing.Token = ""
	require.False(t, missing.Configured())

	disabled := full
	disabled.Enabled = false
	require.False(t, disabled.Configured())
}

func TestRawRoundTripsThroughSanitize(t *testing.T) {
	t.Parallel()

	opts := Options{Enabled: true, Debug: true, SiteID: 9, URL: "https://m.example.com/", Token: "tok", ViewsDays: 4}
	require.Equal(t, opts, Sanitize(opts.Raw(), Defaults(nil)))
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "MAI_ANALYTICS_URL", EnvName(KeyURL))
	require.Empty(t, EnvName(KeyViewsDays))
}
