// Package service implements the identity provider boundary: sign-up,
// sign-in, sign-out, session retrieval with refresh rotation, and password
// management. Every error leaving this package carries a domain-errors code;
// raw store or crypto errors never reach handlers.
package service

import (
	"context"
	"log/slog"
	"net/mail"
	"time"

	"shopgate/internal/identity/events"
	"shopgate/internal/identity/models"
	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	audit "shopgate/pkg/platform/audit"
	"shopgate/pkg/requestcontext"
)

// UserStore persists identities.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID id.UserID, hash string) error
}

// SessionStore persists issued sessions, one live session per scope.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	FindByScope(ctx context.Context, scope string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, sessionID id.SessionID) error
}

// ResetTokenStore persists one-shot password reset tokens.
type ResetTokenStore interface {
	Save(ctx context.Context, token *models.ResetToken) error
	Consume(ctx context.Context, token string, now time.Time) (*models.ResetToken, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID id.UserID, sessionID id.SessionID, issuedAt, expiresAt time.Time) (string, error)
}

// AuditPublisher records domain actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Config carries the token lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
}

// Service is the identity provider facade consumed by handlers and by the
// authorization state holder.
type Service struct {
	users       UserStore
	sessions    SessionStore
	resets      ResetTokenStore
	tokens      TokenIssuer
	broadcaster *events.Broadcaster
	auditor     AuditPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cfg         Config
}

func New(
	users UserStore,
	sessions SessionStore,
	resets ResetTokenStore,
	tokens TokenIssuer,
	broadcaster *events.Broadcaster,
	auditor AuditPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	return &Service{
		users:       users,
		sessions:    sessions,
		resets:      resets,
		tokens:      tokens,
		broadcaster: broadcaster,
		auditor:     auditor,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
	}
}

// Subscribe exposes the ordered auth-change stream for a scope.
func (s *Service) Subscribe(scope string) (<-chan models.AuthEvent, func()) {
	return s.broadcaster.Subscribe(scope)
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	event.Action = string(action)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "error", err, "action", event.Action)
	}
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
