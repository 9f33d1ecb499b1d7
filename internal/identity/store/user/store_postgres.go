package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/sentinel"
)

// PostgresStore persists users in the users table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(user.ID),
		strings.ToLower(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.Verified,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, verified, created_at
		FROM users WHERE id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, uuid.UUID(userID)))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, verified, created_at
		FROM users WHERE email = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID id.UserID, hash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		uuid.UUID(userID), hash,
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (*models.User, error) {
	var user models.User
	var uid uuid.UUID
	err := row.Scan(&uid, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Verified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(uid)
	return &user, nil
}
