package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
	audit "shopgate/pkg/platform/audit"
	"shopgate/pkg/platform/sentinel"
	"shopgate/pkg/requestcontext"
)

const minPasswordLength = 8

// SignUp registers a new identity. The email must be well-formed and unused;
// the password is checked client-side too, but the boundary re-validates
// because clients cannot be trusted.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*models.User, error) {
	if !validEmail(email) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email address is required")
	}
	if len(password) < minPasswordLength {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user := &models.User{
		ID:           id.NewUserID(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    requestcontext.Now(ctx),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logAudit(ctx, audit.EventUserCreated, audit.Event{UserID: user.ID})
	return user, nil
}

// UpdatePassword changes a signed-in user's password after verifying the
// current one.
func (s *Service) UpdatePassword(ctx context.Context, userID id.UserID, current, newPassword string) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "user ID required")
	}
	if len(newPassword) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}

	s.logAudit(ctx, audit.EventPasswordChanged, audit.Event{UserID: userID})
	return nil
}

// RequestPasswordReset issues a one-shot reset token. Unknown emails succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	if !validEmail(email) {
		return dErrors.New(dErrors.CodeInvalidInput, "a valid email address is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	reset := &models.ResetToken{
		Token:       newOpaqueToken(),
		UserID:      user.ID,
		RedirectURL: redirectURL,
		ExpiresAt:   requestcontext.Now(ctx).Add(s.cfg.ResetTokenTTL),
	}
	if err := s.resets.Save(ctx, reset); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save reset token")
	}

	// Delivery is out of band; the token only ever appears in the email.
	s.logger.InfoContext(ctx, "password reset token issued", "user_id", user.ID.String())
	s.logAudit(ctx, audit.EventPasswordResetSent, audit.Event{UserID: user.ID})
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, tokenStr, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	reset, err := s.resets.Consume(ctx, tokenStr, requestcontext.Now(ctx))
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrAlreadyUsed):
			return dErrors.New(dErrors.CodeUnauthorized, "invalid reset token")
		case errors.Is(err, sentinel.ErrExpired):
			return dErrors.New(dErrors.CodeExpiredCredentials, "reset token expired")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume reset token")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, reset.UserID, string(hash)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}

	s.logAudit(ctx, audit.EventPasswordChanged, audit.Event{UserID: reset.UserID})
	return nil
}
