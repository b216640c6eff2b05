package matomo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

func collectorServer(t *testing.T, version, tracker http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/index.php", version)
	mux.HandleFunc("/matomo.php", tracker)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckConnectionSkipsWithoutCredentials(t *testing.T) {
	t.Parallel()

	require.Nil(t, CheckConnection(context.Background(), nil, options.Options{URL: "https://m.example.com/"}, 0))
}

func TestCheckConnectionDisabledWarns(t *testing.T) {
	t.Parallel()

	notices := CheckConnection(context.Background(), nil, options.Options{URL: "https://m.example.com/", Token: "t"}, 0)
	require.Equal(t, []Notice{{Type: NoticeWarning, Label: "Matomo", Message: "Tracking is disabled."}}, notices)
	require.Equal(t, "#dba617", notices[0].Type.Color())
}

func TestCheckConnectionSuccess(t *testing.T) {
	t.Parallel()

	var token string
	srv := collectorServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			token = r.URL.Query().Get("token_auth")
			_, _ = w.Write([]byte(`{"value":"5.1.0"}`))
		},
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`This resource is part of Matomo.`))
		},
	)

	notices := CheckConnection(context.Background(), srv.Client(), options.Options{
		Enabled: true, URL: srv.URL + "/", Token: "secret",
	}, 0)

	require.Equal(t, "secret", token)
	require.Equal(t, []Notice{
		{Type: NoticeSuccess, Label: "Matomo Version", Message: "5.1.0"},
		{Type: NoticeSuccess, Label: "Matomo Tracker", Message: "Connected"},
	}, notices)
}

func TestCheckConnectionStopsAtFirstError(t *testing.T) {
	t.Parallel()

	trackerHit := false
	srv := collectorServer(t,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"result":"error","message":"You must be logged in"}`))
		},
		func(http.ResponseWriter, *http.Request) { trackerHit = true },
	)

	notices := CheckConnection(context.Background(), srv.Client(), options.Options{
		Enabled: true, URL: srv.URL + "/", Token: "bad",
	}, 0)

	require.Len(t, notices, 1)
	require.Equal(t, NoticeError, notices[0].Type)
	require.Equal(t, "You must be logged in", notices[0].Message)
	require.False(t, trackerHit)
}

func TestCheckConnectionHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := collectorServer(t,
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) },
		func(http.ResponseWriter, *http.Request) {},
	)

	notices := CheckConnection(context.Background(), srv.Client(), options.Options{
		Enabled: true, URL: srv.URL + "/", Token: "t",
	}, 0)

	require.Equal(t, []Notice{{Type: NoticeError, Label: "Matomo Version", Message: "403 Forbidden"}}, notices)
}

func TestCheckConnectionTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()

	notices := CheckConnection(context.Background(), nil, options.Options{Enabled: true, URL: base, Token: "t"}, 0)
	require.Len(t, notices, 1)
	require.Equal(t, NoticeError, notices[0].Type)
	require.NotEmpty(t, notices[0].Message)
}
