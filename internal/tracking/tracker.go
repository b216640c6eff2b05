// Package tracking sends server-side page views to the collector, annotated
// with the visitor's identity and team.
package tracking

import (
	"context"
	"net"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/gate"
	"github.com/JakeFAU/matomo-bridge/internal/identity"
	"github.com/JakeFAU/matomo-bridge/internal/matomo"
	"github.com/JakeFAU/matomo-bridge/internal/metrics"
	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/policy/ratelimit"
	"github.com/JakeFAU/matomo-bridge/internal/reqscope"
	"github.com/JakeFAU/matomo-bridge/internal/telemetry"
)

// LoginAction is the page-view title of the identification call sent when a
// user logs in.
const LoginAction = "Account Log In"

// DefaultTeamDimension is the custom dimension that carries the team name.
const DefaultTeamDimension = 5

// VisitorIDs generates collector visitor ids for requests without one.
type VisitorIDs interface {
	NewVisitorID() (string, error)
}

// Deps carries the collaborators shared by every Tracker.
type Deps struct {
	HTTPClient    *http.Client
	Timeout       time.Duration
	Gate          gate.Classifier
	Memberships   MembershipSource
	Team          TeamFunc
	TeamDimension int
	VisitorIDs    VisitorIDs
	Limiter       *ratelimit.Limiter
	Logger        *zap.Logger
}

// Tracker sends tracking calls for one set of resolved options.
type Tracker struct {
	opts   options.Options
	client *matomo.Client
	deps   Deps
	logger *zap.Logger
}

// New returns a Tracker, or nil when tracking is disabled or the site id,
// URL, or token is missing. Every method is safe to call on a nil Tracker.
func New(opts options.Options, deps Deps) *Tracker {
	if !opts.Configured() {
		return nil
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := matomo.NewClient(matomo.Config{
		BaseURL:    opts.URL,
		SiteID:     opts.SiteID,
		Token:      opts.Token,
		HTTPClient: deps.HTTPClient,
		Timeout:    deps.Timeout,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("matomo client unavailable", zap.Error(err))
		return nil
	}
	if deps.TeamDimension == 0 {
		deps.TeamDimension = DefaultTeamDimension
	}
	return &Tracker{opts: opts, client: client, deps: deps, logger: logger}
}

// Options returns the options the tracker was built with.
func (t *Tracker) Options() options.Options {
	if t == nil {
		return options.Options{}
	}
	return t.opts
}

// Client returns the collector client.
func (t *Tracker) Client() *matomo.Client {
	if t == nil {
		return nil
	}
	return t.client
}

// ShouldTrack reports whether r is eligible for tracking. The decision is
// memoised in the request scope.
func (t *Tracker) ShouldTrack(ctx context.Context, r *http.Request) bool {
	if t == nil {
		return false
	}
	decide := func() bool {
		req := t.deps.Gate.Classify(r)
		req.CLI = req.CLI || gate.IsCLI(ctx)
		return gate.Decide(req, t.opts)
	}
	if scope, ok := reqscope.FromContext(ctx); ok {
		return scope.ShouldTrack(decide)
	}
	return decide()
}

// Dimensions returns the custom dimensions for user. Anonymous users get none.
func (t *Tracker) Dimensions(ctx context.Context, user identity.User) map[int]string {
	dims := map[int]string{}
	if t == nil || !user.Authenticated() || t.deps.Team == nil || t.deps.TeamDimension <= 0 {
		return dims
	}
	if team := t.deps.Team(user.ID, t.planIDs(ctx, user.ID)); team != "" {
		dims[t.deps.TeamDimension] = team
	}
	return dims
}

func (t *Tracker) planIDs(ctx context.Context, userID string) []int64 {
	load := func() []int64 {
		if t.deps.Memberships == nil {
			return []int64{}
		}
		ids, err := t.deps.Memberships.ActivePlanIDs(ctx, userID)
		if err != nil {
			t.logger.Warn("membership lookup failed", zap.String("user_id", userID), zap.Error(err))
			return []int64{}
		}
		return ids
	}
	if scope, ok := reqscope.FromContext(ctx); ok {
		return scope.PlanIDs(userID, load)
	}
	return load()
}

// PageView describes the page being tracked.
type PageView struct {
	Request *http.Request
	URL     string
	Title   string
	User    identity.User
}

// Result reports what PageView did.
type Result struct {
	Tracked      bool
	LoginTracked bool
	Dimensions   map[int]string
}

// PageView sends the page view, preceded by the login identification call
// when the user logged in during this request. Collector failures are
// logged and never returned.
func (t *Tracker) PageView(ctx context.Context, pv PageView) Result {
	if t == nil || pv.Request == nil {
		return Result{}
	}
	if !t.ShouldTrack(ctx, pv.Request) {
		metrics.ObserveTrackingCall("pageview", t.opts.URL, metrics.OutcomeSkipped)
		return Result{}
	}
	scope, _ := reqscope.FromContext(ctx)
	debugf := func(format string, args ...any) {
		if t.opts.Debug && scope != nil {
			scope.Debugf(format, args...)
		}
	}

	visit := t.visit(pv)
	visit.Dimensions = t.Dimensions(ctx, pv.User)
	ids := make([]int, 0, len(visit.Dimensions))
	for id := range visit.Dimensions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		debugf("Dimension %d: %s", id, visit.Dimensions[id])
	}
	res := Result{Dimensions: visit.Dimensions}

	if pv.User.Authenticated() {
		visit.UserID = pv.User.TrackingID()
		debugf("User: %s", visit.UserID)
		if pv.User.JustLoggedIn {
			if t.send(ctx, "login", visit, LoginAction) {
				res.LoginTracked = true
				debugf("Tracked login for %s", visit.UserID)
			} else {
				debugf("Login tracking failed")
			}
		}
	}

	if t.send(ctx, "pageview", visit, pv.Title) {
		res.Tracked = true
		debugf("Tracked page view: %s", pv.Title)
	} else {
		debugf("Page view tracking failed: %s", pv.Title)
	}
	return res
}

func (t *Tracker) send(ctx context.Context, call string, visit matomo.Visit, title string) bool {
	if !t.deps.Limiter.Allow(t.opts.URL) {
		metrics.ObserveTrackingCall(call, t.opts.URL, metrics.OutcomeSkipped)
		t.logger.Debug("tracking call rate limited", zap.String("call", call))
		return false
	}
	ctx, span := telemetry.StartSpan(ctx, "matomo.track",
		attribute.String("call", call),
		attribute.Int64("site_id", int64(t.client.SiteID())), //nolint:gosec // site ids are small
	)
	err := t.client.TrackPageView(ctx, visit, title)
	telemetry.EndSpan(span, err)
	if err != nil {
		metrics.ObserveTrackingCall(call, t.opts.URL, metrics.OutcomeError)
		t.logger.Warn("tracking call failed", zap.String("call", call), zap.String("url", visit.URL), zap.Error(err))
		return false
	}
	metrics.ObserveTrackingCall(call, t.opts.URL, metrics.OutcomeSent)
	return true
}

func (t *Tracker) visit(pv PageView) matomo.Visit {
	r := pv.Request
	v := matomo.Visit{
		URL:       pv.URL,
		Referrer:  r.Referer(),
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
		Language:  r.Header.Get("Accept-Language"),
		VisitorID: matomo.VisitorIDFromCookies(r),
	}
	if v.URL == "" {
		v.URL = requestURL(r)
	}
	if v.VisitorID == "" && t.deps.VisitorIDs != nil {
		if id, err := t.deps.VisitorIDs.NewVisitorID(); err == nil {
			v.VisitorID = id
		}
	}
	return v
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
