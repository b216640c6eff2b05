package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/bridge"
	"github.com/JakeFAU/matomo-bridge/internal/config"
	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
	"github.com/JakeFAU/matomo-bridge/internal/storage/memory"
)

func TestNewProxy_RejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewProxy("/just/a/path", nil)
	require.Error(t, err)
}

func TestNewProxy_ForwardsWithHost(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Forwarded", r.Header.Get("X-Forwarded-Host"))
		_, _ = w.Write([]byte("hello " + r.URL.Path))
	}))
	t.Cleanup(upstream.Close)

	proxy, err := NewProxy(upstream.URL, zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://site.example.com/about/", nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello /about/", rec.Body.String())
	require.Equal(t, "site.example.com", rec.Header().Get("X-Seen-Host"))
	require.Equal(t, "site.example.com", rec.Header().Get("X-Seen-Forwarded"))
}

func TestNewProxy_BadGateway(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	proxy, err := NewProxy(target, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "upstream unavailable")
}

func TestServer_ProxiesThroughTrackingPipeline(t *testing.T) {
	t.Parallel()

	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(collector.Close)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>About</title></head><body>About us</body></html>"))
	}))
	t.Cleanup(upstream.Close)

	store := memory.NewOptionsStore()
	require.NoError(t, store.Save(t.Context(), options.Options{
		Enabled: true,
		SiteID:  3,
		URL:     collector.URL + "/",
		Token:   "tok",
	}))
	pages, err := page.NewClassifier(nil, "")
	require.NoError(t, err)
	proxy, err := NewProxy(upstream.URL, nil)
	require.NoError(t, err)

	b := bridge.New(bridge.Config{
		Resolver: options.NewResolver(store, nil, nil),
		Pages:    pages,
	})
	s := newTestServer(t, config.Config{}, func(d *Deps) {
		d.Bridge = b
		d.Upstream = proxy
	})

	req := httptest.NewRequest(http.MethodGet, "http://site.example.com/about/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "setSiteId"), body)
	require.Less(t, strings.Index(body, "<script>"), strings.Index(body, "</head>"))
}
