package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
	audit "shopgate/pkg/platform/audit"
	"shopgate/pkg/platform/sentinel"
	"shopgate/pkg/requestcontext"
)

// SignIn verifies credentials and issues a session for the scope, replacing
// any previous one. Unknown email and wrong password are indistinguishable
// to the caller.
func (s *Service) SignIn(ctx context.Context, scope, email, password string) (*models.Session, error) {
	if scope == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "scope is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logAudit(ctx, audit.EventAuthFailed, audit.Event{Scope: scope, Reason: "unknown email"})
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logAudit(ctx, audit.EventAuthFailed, audit.Event{UserID: user.ID, Scope: scope, Reason: "bad password"})
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	session, err := s.issueSession(ctx, user, scope)
	if err != nil {
		return nil, err
	}

	s.metrics.SignIns.Inc()
	s.logAudit(ctx, audit.EventSignedIn, audit.Event{UserID: user.ID, Scope: scope})
	s.broadcaster.Publish(models.AuthEvent{
		Type:    models.EventSignedIn,
		Scope:   scope,
		UserID:  user.ID,
		Session: session.Clone(),
	})
	return session, nil
}

// SignOut revokes the scope's session. Signing out an already-anonymous
// scope is a no-op so the operation stays idempotent.
func (s *Service) SignOut(ctx context.Context, scope string) error {
	session, err := s.sessions.FindByScope(ctx, scope)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up session")
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}

	s.metrics.SignOuts.Inc()
	s.logAudit(ctx, audit.EventSignedOut, audit.Event{UserID: session.UserID, Scope: scope})
	s.broadcaster.Publish(models.AuthEvent{
		Type:   models.EventSignedOut,
		Scope:  scope,
		UserID: session.UserID,
	})
	return nil
}

// CurrentSession returns the scope's live session, rotating tokens when the
// access token has expired. A scope with no session returns (nil, nil) —
// anonymous is a state, not an error. An expired refresh token purges the
// session and returns CodeExpiredCredentials: a recoverable "please sign in
// again", never an internal failure.
func (s *Service) CurrentSession(ctx context.Context, scope string) (*models.Session, error) {
	session, err := s.sessions.FindByScope(ctx, scope)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to look up session")
	}

	now := requestcontext.Now(ctx)
	if !session.AccessExpired(now) {
		return session, nil
	}

	if session.RefreshExpired(now) {
		// Purge the dead credential artifacts before reporting, so a retry
		// cleanly lands in the anonymous state.
		if derr := s.sessions.Delete(ctx, session.ID); derr != nil {
			s.logger.ErrorContext(ctx, "failed to purge expired session",
				"error", derr, "session_id", session.ID.String())
		}
		return nil, dErrors.New(dErrors.CodeExpiredCredentials, "refresh token expired")
	}

	rotated, err := s.rotate(ctx, session)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventTokenRefreshed, audit.Event{UserID: rotated.UserID, Scope: scope})
	s.broadcaster.Publish(models.AuthEvent{
		Type:    models.EventTokenRefreshed,
		Scope:   scope,
		UserID:  rotated.UserID,
		Session: rotated.Clone(),
	})
	return rotated, nil
}

func (s *Service) issueSession(ctx context.Context, user *models.User, scope string) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	sessionID := id.NewSessionID()

	access, err := s.tokens.Issue(user.ID, sessionID, now, now.Add(s.cfg.AccessTokenTTL))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	session := &models.Session{
		ID:               sessionID,
		UserID:           user.ID,
		Scope:            scope,
		AccessToken:      access,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshToken:     newOpaqueToken(),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		Device:           deviceLabel(requestcontext.UserAgent(ctx)),
		CreatedAt:        now,
		LastActivity:     now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store session")
	}
	return session, nil
}

// rotate refreshes both tokens in place. The refresh token rotates too so a
// leaked old token dies with the rotation.
func (s *Service) rotate(ctx context.Context, session *models.Session) (*models.Session, error) {
	now := requestcontext.Now(ctx)

	access, err := s.tokens.Issue(session.UserID, session.ID, now, now.Add(s.cfg.AccessTokenTTL))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}

	session.AccessToken = access
	session.AccessExpiresAt = now.Add(s.cfg.AccessTokenTTL)
	session.RefreshToken = newOpaqueToken()
	session.RefreshExpiresAt = now.Add(s.cfg.RefreshTokenTTL)
	session.LastActivity = now

	if err := s.sessions.Update(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeExpiredCredentials, "session revoked during refresh")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}
	return session, nil
}

func newOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// deviceLabel renders a human-readable device name from the User-Agent, like
// the device list shown on account security pages.
func deviceLabel(ua string) string {
	if ua == "" {
		return "Unknown device"
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if name == "" {
		return "Unknown device"
	}
	if os := parsed.OSInfo().Name; os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}
