//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema mirrors the production tables the gateway expects.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    verified      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS admin_users (
    user_id    UUID PRIMARY KEY,
    granted_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS store_settings (
    id                      INTEGER PRIMARY KEY,
    currency                TEXT NOT NULL,
    tax_rate                DOUBLE PRECISION NOT NULL,
    flat_shipping_fee       BIGINT NOT NULL,
    free_shipping_threshold BIGINT NOT NULL,
    feature_toggles         JSONB NOT NULL DEFAULT '{}',
    theme                   JSONB NOT NULL DEFAULT '{}',
    version                 BIGINT NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
    id         UUID PRIMARY KEY,
    category   TEXT NOT NULL,
    timestamp  TIMESTAMPTZ NOT NULL,
    user_id    UUID,
    action     TEXT NOT NULL,
    decision   TEXT NOT NULL DEFAULT '',
    reason     TEXT NOT NULL DEFAULT '',
    scope      TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    actor_id   TEXT NOT NULL DEFAULT ''
);
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// gateway schema applied.
type PostgresContainer struct {
	DSN  string
	Pool *pgxpool.Pool
}

// NewPostgresContainer starts Postgres, applies the schema, and connects a
// pgx pool.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shopgate"),
		tcpostgres.WithUsername("shopgate"),
		tcpostgres.WithPassword("shopgate"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	poolCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(poolCtx, dsn)
	if err != nil {
		t.Fatalf("failed to connect pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{DSN: dsn, Pool: pool}
}

// TruncateAll clears every table, isolating tests from each other.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx,
		`TRUNCATE users, admin_users, store_settings, audit_events`)
	return err
}
