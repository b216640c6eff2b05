package options

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotFound is returned by a Store that has nothing persisted yet.
var ErrNotFound = errors.New("options not found")

// Store persists the settings submitted through the settings form.
type Store interface {
	Load(ctx context.Context) (Raw, error)
	Save(ctx context.Context, opts Options) error
}

// Resolver produces the effective options: persisted values (or defaults),
// then overrides, then sanitisation.
type Resolver struct {
	store     Store
	overrides Overrides
	logger    *zap.Logger
}

// NewResolver constructs a Resolver. A nil logger is replaced with a no-op logger.
func NewResolver(store Store, overrides Overrides, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if overrides == nil {
		overrides = Overrides{}
	}
	return &Resolver{store: store, overrides: overrides, logger: logger}
}

// Overrides returns the environment overrides in effect.
func (r *Resolver) Overrides() Overrides {
	return r.overrides
}

// Resolve returns the effective options. Storage failures fall back to the
// defaults so that tracking degrades instead of breaking the request.
func (r *Resolver) Resolve(ctx context.Context) Options {
	defaults := Defaults(r.overrides)
	raw := defaults
	if r.store != nil {
		stored, err := r.store.Load(ctx)
		switch {
		case err == nil:
			raw = stored
		case errors.Is(err, ErrNotFound):
		default:
			r.logger.Warn("load options failed; using defaults", zap.Error(err))
		}
	}
	raw = raw.Clone()
	for key, value := range r.overrides {
		raw[key] = value
	}
	return Sanitize(raw, defaults)
}

// Save sanitises a form submission and persists it.
func (r *Resolver) Save(ctx context.Context, input Raw) (Options, error) {
	if r.store == nil {
		return Options{}, errors.New("options store is not configured")
	}
	opts := Sanitize(input, Defaults(r.overrides))
	if err := r.store.Save(ctx, opts); err != nil {
		return Options{}, fmt.Errorf("save options: %w", err)
	}
	return opts, nil
}
