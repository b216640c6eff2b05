package views

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no counts are stored for a URL.
var ErrNotFound = errors.New("view counts not found")

// Counts is the stored view tally for one page URL.
type Counts struct {
	URL       string    `json:"url"`
	Views     int64     `json:"views"`
	Trending  int64     `json:"trending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists view counts keyed by URL.
type Store interface {
	Get(ctx context.Context, url string) (Counts, error)
	Put(ctx context.Context, counts Counts) error
}
