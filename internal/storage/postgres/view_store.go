package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/matomo-bridge/internal/views"
)

// ViewStore persists view counts per URL.
type ViewStore struct {
	pool querier
}

// Get returns the counts for url or views.ErrNotFound.
func (s *ViewStore) Get(ctx context.Context, url string) (views.Counts, error) {
	c := views.Counts{URL: url}
	err := s.pool.QueryRow(ctx, `SELECT views, trending, updated_at FROM page_views WHERE url = $1`, url).
		Scan(&c.Views, &c.Trending, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return views.Counts{}, views.ErrNotFound
	}
	if err != nil {
		return views.Counts{}, fmt.Errorf("load view counts: %w", err)
	}
	return c, nil
}

// Put upserts counts.
func (s *ViewStore) Put(ctx context.Context, counts views.Counts) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO page_views (url, views, trending, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO UPDATE
SET views = EXCLUDED.views, trending = EXCLUDED.trending, updated_at = EXCLUDED.updated_at`,
		counts.URL, counts.Views, counts.Trending, counts.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save view counts: %w", err)
	}
	return nil
}
