// Package gate decides whether a request should be tracked.
package gate

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// Request captures the request traits the decision depends on.
type Request struct {
	Async bool
	JSON  bool
	CLI   bool
	Admin bool
	Bot   bool
}

// Decide returns false for background, data-only, command-line, and bot
// requests, and for admin views while admin tracking is off.
func Decide(req Request, opts options.Options) bool {
	switch {
	case req.Async:
		return false
	case req.JSON:
		return false
	case req.CLI:
		return false
	case req.Admin && !opts.EnabledAdmin:
		return false
	case req.Bot:
		return false
	default:
		return true
	}
}

type cliKey struct{}

// WithCLI marks ctx as belonging to a command-line invocation.
func WithCLI(ctx context.Context) context.Context {
	return context.WithValue(ctx, cliKey{}, true)
}

// IsCLI reports whether ctx was marked by WithCLI.
func IsCLI(ctx context.Context) bool {
	v, _ := ctx.Value(cliKey{}).(bool)
	return v
}

// Classifier derives a Request from an incoming HTTP request.
type Classifier struct {
	AjaxPath    string
	JSONPrefix  string
	AdminPrefix string
}

// DefaultClassifier uses the conventional CMS paths.
var DefaultClassifier = Classifier{
	AjaxPath:    "/wp-admin/admin-ajax.php",
	JSONPrefix:  "/wp-json/",
	AdminPrefix: "/wp-admin/",
}

// Classify inspects r.
func (c Classifier) Classify(r *http.Request) Request {
	path := r.URL.Path
	return Request{
		Async: strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") ||
			(c.AjaxPath != "" && path == c.AjaxPath),
		JSON: wantsJSON(r) || (c.JSONPrefix != "" && strings.HasPrefix(path, c.JSONPrefix)) ||
			r.URL.Query().Get("rest_route") != "",
		CLI:   IsCLI(r.Context()),
		Admin: c.AdminPrefix != "" && strings.HasPrefix(path, c.AdminPrefix),
		Bot:   IsBot(r.UserAgent()),
	}
}

func wantsJSON(r *http.Request) bool {
	if isJSONMediaType(r.Header.Get("Content-Type")) {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		if isJSONMediaType(part) {
			return true
		}
	}
	return false
}

func isJSONMediaType(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
