package inject

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScriptOrder(t *testing.T) {
	t.Parallel()

	out, err := Script(Config{
		URL:        "https://m.example.com/",
		SiteID:     12,
		Dimensions: map[int]string{5: "Gold", 2: "", 3: "Blue"},
	})
	require.NoError(t, err)

	calls := []string{
		"'setCustomDimension'",
		`"Blue"`,
		`"Gold"`,
		"'enableLinkTracking'",
		"'trackPageView'",
		"'trackVisibleContentImpressions'",
		"m.example.com",
		"'setTrackerUrl', u + 'matomo.php'",
		"'setSiteId'",
		`"12"`,
		"u + 'matomo.js'",
	}
	pos := 0
	for _, call := range calls {
		idx := strings.Index(out[pos:], call)
		require.GreaterOrEqual(t, idx, 0, "missing %s after offset %d in %s", call, pos, out)
		pos += idx + len(call)
	}
	require.Equal(t, 2, strings.Count(out, "setCustomDimension"))
	require.NotContains(t, out, "console.log")
	require.True(t, strings.HasPrefix(out, "<script>"))
	require.True(t, strings.HasSuffix(out, "</script>"))
}

func TestScriptEscapesValues(t *testing.T) {
	t.Parallel()

	out, err := Script(Config{
		URL:        "https://m.example.com/",
		SiteID:     1,
		Dimensions: map[int]string{5: "</script><script>alert(1)"},
		Debug:      []string{"User: <b>"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "</script>"))
	require.Contains(t, out, "console.log(")
	require.Contains(t, out, "Matomo Bridge / User: ")
}

func TestDebugScript(t *testing.T) {
	t.Parallel()

	require.Empty(t, DebugScript(nil))
	out := DebugScript([]string{"Tracked page view: Home"})
	require.Contains(t, out, `console.log("Matomo Bridge / Tracked page view: Home")`)
}
