package gate

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	off := options.Options{}
	on := options.Options{EnabledAdmin: true}

	require.False(t, Decide(Request{Async: true}, on))
	require.False(t, Decide(Request{JSON: true}, on))
	require.False(t, Decide(Request{CLI: true}, on))
	require.False(t, Decide(Request{Bot: true}, on))
	require.False(t, Decide(Request{Admin: true}, off))
	require.True(t, Decide(Request{Admin: true}, on))
	require.True(t, Decide(Request{}, off))
	require.True(t, Decide(Request{}, on))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier

	ajax := httptest.NewRequest("POST", "/wp-admin/admin-ajax.php", nil)
	require.True(t, c.Classify(ajax).Async)

	xhr := httptest.NewRequest("GET", "/page/", nil)
	xhr.Header.Set("X-Requested-With", "XMLHttpRequest")
	require.True(t, c.Classify(xhr).Async)

	rest := httptest.NewRequest("GET", "/wp-json/wp/v2/posts", nil)
	require.True(t, c.Classify(rest).JSON)

	accept := httptest.NewRequest("GET", "/feed", nil)
	accept.Header.Set("Accept", "text/html;q=0.9, application/json")
	require.True(t, c.Classify(accept).JSON)

	restRoute := httptest.NewRequest("GET", "/?rest_route=/wp/v2/posts", nil)
	require.True(t, c.Classify(restRoute).JSON)

	admin := httptest.NewRequest("GET", "/wp-admin/edit.php", nil)
	got := c.Classify(admin)
	require.True(t, got.Admin)
	require.False(t, got.Async)

	cli := httptest.NewRequest("GET", "/", nil)
	cli = cli.WithContext(WithCLI(cli.Context()))
	require.True(t, c.Classify(cli).CLI)

	bot := httptest.NewRequest("GET", "/", nil)
	bot.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
	require.True(t, c.Classify(bot).Bot)

	page := httptest.NewRequest("GET", "/2024/01/01/post/", nil)
	page.Header.Set("Accept", "text/html,application/xhtml+xml")
	page.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
	require.Equal(t, Request{}, c.Classify(page))
	require.True(t, Decide(c.Classify(page), options.Options{}))
}
