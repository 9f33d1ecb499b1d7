package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	id "shopgate/pkg/domain"
)

// PostgresStore reads and writes the admin_users table, the single
// authoritative record of the admin attribute.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) IsAdmin(ctx context.Context, userID id.UserID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admin_users WHERE user_id = $1)`,
		uuid.UUID(userID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query admin record: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Grant(ctx context.Context, userID id.UserID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_users (user_id, granted_at) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.UUID(userID), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("grant admin: %w", err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, userID id.UserID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM admin_users WHERE user_id = $1`,
		uuid.UUID(userID),
	)
	if err != nil {
		return fmt.Errorf("revoke admin: %w", err)
	}
	return nil
}
