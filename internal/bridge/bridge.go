// Package bridge wires the per-request tracking pipeline: it resolves the
// options and visitor, sends the server-side page view, annotates content
// blocks, and injects the client script into HTML responses.
package bridge

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/annotate"
	"github.com/JakeFAU/matomo-bridge/internal/identity"
	"github.com/JakeFAU/matomo-bridge/internal/inject"
	"github.com/JakeFAU/matomo-bridge/internal/metrics"
	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
	"github.com/JakeFAU/matomo-bridge/internal/reqscope"
	"github.com/JakeFAU/matomo-bridge/internal/tracking"
	"github.com/JakeFAU/matomo-bridge/internal/views"
)

// Config carries the bridge collaborators. Resolver and Pages are required.
type Config struct {
	Resolver  *options.Resolver
	Pages     *page.Classifier
	Identity  identity.Resolver
	Annotator *annotate.Annotator
	Views     *views.Refresher
	Tracking  tracking.Deps
	Logger    *zap.Logger
}

// Bridge runs the tracking pipeline around an http.Handler.
type Bridge struct {
	resolver  *options.Resolver
	pages     *page.Classifier
	identity  identity.Resolver
	annotator *annotate.Annotator
	views     *views.Refresher
	deps      tracking.Deps
	logger    *zap.Logger
}

// New constructs a Bridge.
func New(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ident := cfg.Identity
	if ident == nil {
		ident = identity.Anonymous{}
	}
	deps := cfg.Tracking
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Bridge{
		resolver:  cfg.Resolver,
		pages:     cfg.Pages,
		identity:  ident,
		annotator: cfg.Annotator,
		views:     cfg.Views,
		deps:      deps,
		logger:    logger,
	}
}

// Options returns the effective options for the request in ctx, memoised in
// its scope.
func (b *Bridge) Options(ctx context.Context) options.Options {
	resolve := func() options.Options { return b.resolver.Resolve(ctx) }
	if scope, ok := reqscope.FromContext(ctx); ok {
		return scope.Options(resolve)
	}
	return resolve()
}

// Tracker builds the tracker for the request in ctx; nil when tracking is
// not configured.
func (b *Bridge) Tracker(ctx context.Context) *tracking.Tracker {
	return tracking.New(b.Options(ctx), b.deps)
}

type requestState struct {
	opts     options.Options
	tracker  *tracking.Tracker
	user     identity.User
	eligible bool
}

// Middleware wraps next with the pipeline.
func (b *Bridge) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := reqscope.Ensure(r.Context())
		r = r.WithContext(ctx)

		st := requestState{opts: b.Options(ctx)}
		st.tracker = tracking.New(st.opts, b.deps)
		if st.tracker != nil && r.Method == http.MethodGet {
			st.eligible = st.tracker.ShouldTrack(ctx, r)
		}
		if !st.eligible && !b.annotator.Enabled() && !st.opts.Debug {
			next.ServeHTTP(w, r)
			return
		}
		if st.eligible {
			user, err := b.identity.Resolve(w, r)
			if err != nil {
				b.logger.Warn("identity lookup failed", zap.Error(err))
			}
			st.user = user
		}

		// Bodies are rewritten in place, so ask the upstream for identity encoding.
		out := r.Clone(ctx)
		out.Header.Del("Accept-Encoding")

		inject.RewriteHTML(next, func(r *http.Request, status int, body []byte) []byte {
			return b.rewrite(r, status, body, st)
		}).ServeHTTP(w, out)
	})
}

func (b *Bridge) rewrite(r *http.Request, status int, body []byte, st requestState) []byte {
	ctx := r.Context()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		b.logger.Warn("parse html response failed", zap.String("path", r.URL.Path), zap.Error(err))
		return body
	}

	if b.annotator.Enabled() {
		if n := b.annotator.Document(doc); n > 0 {
			metrics.ObserveAnnotation("document", n)
			if rendered, err := doc.Html(); err == nil {
				body = []byte(rendered)
			} else {
				b.logger.Warn("render annotated html failed", zap.Error(err))
			}
		}
	}

	scope, _ := reqscope.FromContext(ctx)
	if !st.eligible || !trackable(status) {
		if !st.opts.Debug {
			return body
		}
		scope.Debugf("%s", skipReason(st, r, status))
		return inject.InsertHead(body, inject.DebugScript(scope.DebugMessages()))
	}

	desc := scope.Page(func() page.Descriptor { return b.pages.Describe(r) })
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		scope.SetPageTitle(title)
		desc.Title = title
	}

	res := st.tracker.PageView(ctx, tracking.PageView{
		Request: r,
		URL:     b.pages.RequestURL(r),
		Title:   page.Title(desc, r),
		User:    st.user,
	})
	if desc.Singular() && desc.URL != "" {
		b.views.Refresh(ctx, st.tracker.Client(), st.opts, desc.URL)
	}

	cfg := inject.Config{URL: st.opts.URL, SiteID: st.opts.SiteID, Dimensions: res.Dimensions}
	if st.opts.Debug {
		cfg.Debug = scope.DebugMessages()
	}
	script, err := inject.Script(cfg)
	if err != nil {
		b.logger.Error("render tracking script failed", zap.Error(err))
		return body
	}
	metrics.ObserveScriptInjection()
	return inject.InsertHead(body, script)
}

func trackable(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotFound
}

func skipReason(st requestState, r *http.Request, status int) string {
	switch {
	case st.tracker == nil:
		return "Tracking not configured"
	case r.Method != http.MethodGet:
		return "Not tracked: " + r.Method + " request"
	case !st.eligible:
		return "Not tracked: request excluded"
	default:
		return "Not tracked: status " + strconv.Itoa(status)
	}
}
