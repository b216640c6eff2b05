package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// DefaultOptionsName is the row holding the settings.
const DefaultOptionsName = "mai_analytics"

// OptionsStore keeps the settings as one jsonb row.
type OptionsStore struct {
	pool querier
	name string
}

// Load returns the saved settings or options.ErrNotFound.
func (s *OptionsStore) Load(ctx context.Context) (options.Raw, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM bridge_options WHERE name = $1`, s.name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, options.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	raw := options.Raw{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return raw, nil
}

// Save upserts the settings row.
func (s *OptionsStore) Save(ctx context.Context, opts options.Options) error {
	payload, err := json.Marshal(opts.Raw())
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO bridge_options (name, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.name, payload)
	if err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	return nil
}
