package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopgate/internal/settings"
	"shopgate/pkg/platform/sentinel"
)

// PostgresStore keeps the settings row in store_settings. The table holds
// exactly one row (id = 1); version fencing rejects writes based on a stale
// read.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context) (*settings.Settings, error) {
	var (
		row         settings.Settings
		togglesJSON []byte
		themeJSON   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT currency, tax_rate, flat_shipping_fee, free_shipping_threshold,
		        feature_toggles, theme, version, updated_at
		 FROM store_settings WHERE id = 1`,
	).Scan(&row.Currency, &row.TaxRate, &row.FlatShippingFee, &row.FreeShippingThreshold,
		&togglesJSON, &themeJSON, &row.Version, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal(togglesJSON, &row.FeatureToggles); err != nil {
		return nil, fmt.Errorf("decode feature toggles: %w", err)
	}
	if err := json.Unmarshal(themeJSON, &row.Theme); err != nil {
		return nil, fmt.Errorf("decode theme: %w", err)
	}
	return &row, nil
}

// Save writes the full row, fenced on the version the caller read. A zero
// rows-affected result means someone else wrote in between.
func (s *PostgresStore) Save(ctx context.Context, next *settings.Settings) (*settings.Settings, error) {
	togglesJSON, err := json.Marshal(next.FeatureToggles)
	if err != nil {
		return nil, fmt.Errorf("encode feature toggles: %w", err)
	}
	themeJSON, err := json.Marshal(next.Theme)
	if err != nil {
		return nil, fmt.Errorf("encode theme: %w", err)
	}

	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE store_settings
		 SET currency = $1, tax_rate = $2, flat_shipping_fee = $3,
		     free_shipping_threshold = $4, feature_toggles = $5, theme = $6,
		     version = version + 1, updated_at = $7
		 WHERE id = 1 AND version = $8`,
		next.Currency, next.TaxRate, next.FlatShippingFee, next.FreeShippingThreshold,
		togglesJSON, themeJSON, now, next.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, sentinel.ErrConflict
	}

	accepted := next.Clone()
	accepted.Version = next.Version + 1
	accepted.UpdatedAt = now
	return accepted, nil
}

// EnsureRow seeds the singleton row when the table is empty, so Load never
// has to special-case first boot.
func (s *PostgresStore) EnsureRow(ctx context.Context) error {
	defaults := settings.Defaults()
	togglesJSON, _ := json.Marshal(defaults.FeatureToggles)
	themeJSON, _ := json.Marshal(defaults.Theme)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO store_settings
		   (id, currency, tax_rate, flat_shipping_fee, free_shipping_threshold,
		    feature_toggles, theme, version, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		defaults.Currency, defaults.TaxRate, defaults.FlatShippingFee,
		defaults.FreeShippingThreshold, togglesJSON, themeJSON,
		defaults.Version, defaults.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("seed settings row: %w", err)
	}
	return nil
}
