// Package views keeps per-page view and trending counts pulled from the
// collector's reporting API.
package views

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/metrics"
	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Reporter reads page hit totals from the collector.
type Reporter interface {
	PageViews(ctx context.Context, pageURL string, days uint64) (int64, error)
}

// Refresher updates stored counts when they are older than the configured
// interval.
type Refresher struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

// NewRefresher constructs a Refresher.
func NewRefresher(store Store, clock Clock, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{store: store, clock: clock, logger: logger}
}

// Due reports whether counts for url should be fetched again.
func (r *Refresher) Due(ctx context.Context, opts options.Options, url string) bool {
	if r == nil || r.store == nil || url == "" || (opts.ViewsDays == 0 && opts.TrendingDays == 0) {
		return false
	}
	counts, err := r.store.Get(ctx, url)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if err != nil {
		r.logger.Warn("view counts lookup failed", zap.String("url", url), zap.Error(err))
		return false
	}
	interval := time.Duration(opts.ViewsInterval) * time.Minute //nolint:gosec // minutes fit easily
	return !r.clock.Now().Before(counts.UpdatedAt.Add(interval))
}

// Refresh fetches fresh counts for url when due and stores them. It returns
// the stored counts and whether a fetch happened.
func (r *Refresher) Refresh(ctx context.Context, reporter Reporter, opts options.Options, url string) (Counts, bool) {
	if reporter == nil || !r.Due(ctx, opts, url) {
		return Counts{}, false
	}
	counts := Counts{URL: url, UpdatedAt: r.clock.Now()}
	var err error
	if counts.Views, err = reporter.PageViews(ctx, url, opts.ViewsDays); err != nil {
		return r.failed(url, err)
	}
	if counts.Trending, err = reporter.PageViews(ctx, url, opts.TrendingDays); err != nil {
		return r.failed(url, err)
	}
	if err := r.store.Put(ctx, counts); err != nil {
		return r.failed(url, err)
	}
	metrics.ObserveViewRefresh(metrics.OutcomeSent)
	return counts, true
}

func (r *Refresher) failed(url string, err error) (Counts, bool) {
	metrics.ObserveViewRefresh(metrics.OutcomeError)
	r.logger.Warn("view counts refresh failed", zap.String("url", url), zap.Error(err))
	return Counts{}, false
}

// Get returns the stored counts for url.
func (r *Refresher) Get(ctx context.Context, url string) (Counts, error) {
	if r == nil || r.store == nil {
		return Counts{}, ErrNotFound
	}
	return r.store.Get(ctx, url) //nolint:wrapcheck // sentinel passes through
}
