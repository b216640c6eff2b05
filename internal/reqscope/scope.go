// Package reqscope carries the per-request memoised state: resolved options,
// the tracking decision, the page descriptor, membership lookups, and debug
// messages. A Scope lives for exactly one request and is never shared.
package reqscope

import (
	"context"
	"fmt"
	"net/http"

	"github.com/JakeFAU/matomo-bridge/internal/options"
	"github.com/JakeFAU/matomo-bridge/internal/page"
)

// Scope memoises request-lifetime values. It is not safe for concurrent use;
// a request is handled by one goroutine.
type Scope struct {
	options     *options.Options
	shouldTrack *bool
	page        *page.Descriptor
	plans       map[string][]int64
	debug       []string
}

// New returns an empty Scope.
func New() *Scope {
	return &Scope{plans: make(map[string][]int64)}
}

// Options returns the cached options, calling resolve on first use.
func (s *Scope) Options(resolve func() options.Options) options.Options {
	if s.options == nil {
		opts := resolve()
		s.options = &opts
	}
	return *s.options
}

// ShouldTrack returns the cached tracking decision, calling decide on first use.
func (s *Scope) ShouldTrack(decide func() bool) bool {
	if s.shouldTrack == nil {
		v := decide()
		s.shouldTrack = &v
	}
	return *s.shouldTrack
}

// Page returns the cached page descriptor, calling describe on first use.
func (s *Scope) Page(describe func() page.Descriptor) page.Descriptor {
	if s.page == nil {
		d := describe()
		s.page = &d
	}
	return *s.page
}

// SetPageTitle records the document title on the cached descriptor.
func (s *Scope) SetPageTitle(title string) {
	if s.page == nil {
		s.page = &page.Descriptor{}
	}
	s.page.Title = title
}

// PlanIDs returns the cached membership plan ids for userID, calling load on
// first use for that user.
func (s *Scope) PlanIDs(userID string, load func() []int64) []int64 {
	if ids, ok := s.plans[userID]; ok {
		return ids
	}
	ids := load()
	if ids == nil {
		ids = []int64{}
	}
	s.plans[userID] = ids
	return ids
}

// Debugf records a debug message for the client console.
func (s *Scope) Debugf(format string, args ...any) {
	s.debug = append(s.debug, fmt.Sprintf(format, args...))
}

// DebugMessages returns a copy of the recorded debug messages.
func (s *Scope) DebugMessages() []string {
	return append([]string(nil), s.debug...)
}

type scopeKey struct{}

// WithScope attaches s to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the Scope attached to ctx.
func FromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// Ensure returns the Scope attached to ctx, attaching a new one when missing.
func Ensure(ctx context.Context) (context.Context, *Scope) {
	if s, ok := FromContext(ctx); ok {
		return ctx, s
	}
	s := New()
	return WithScope(ctx, s), s
}

// Middleware attaches a fresh Scope to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), New())))
	})
}
