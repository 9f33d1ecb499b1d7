// Package handler exposes the identity-provider operations and the
// session/authorization read endpoints over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopgate/internal/authstate"
	"shopgate/internal/identity/models"
	"shopgate/internal/platform/middleware"
	"shopgate/internal/transport/http/shared"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
	"shopgate/pkg/requestcontext"
)

// Service is the identity-provider surface the handler delegates to.
type Service interface {
	SignUp(ctx context.Context, email, password, displayName string) (*models.User, error)
	SignIn(ctx context.Context, scope, email, password string) (*models.Session, error)
	SignOut(ctx context.Context, scope string) error
	UpdatePassword(ctx context.Context, userID id.UserID, current, newPassword string) error
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Handler handles /auth endpoints.
type Handler struct {
	service   Service
	registry  *authstate.Registry
	validator middleware.TokenValidator
	logger    *slog.Logger
}

func New(service Service, registry *authstate.Registry, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, registry: registry, validator: validator, logger: logger}
}

// Register mounts the auth routes. The scope cookie middleware must already
// be installed upstream.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/signup", h.handleSignUp)
	r.Post("/auth/signin", h.handleSignIn)
	r.Post("/auth/signout", h.handleSignOut)
	// Password changes authenticate with the bearer access token issued at
	// sign-in, not the scope cookie alone.
	r.With(middleware.RequireSession(h.validator, h.logger)).Post("/auth/password", h.handleUpdatePassword)
	r.Post("/auth/password/reset", h.handleResetPassword)
	r.Get("/auth/session", h.handleSession)
	r.Post("/auth/recheck", h.handleRecheck)
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signUpRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, err := h.service.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.logger.WarnContext(ctx, "sign-up rejected",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"user_id":      user.ID.String(),
		"email":        user.Email,
		"display_name": user.DisplayName,
	})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := requestcontext.ScopeID(ctx)

	var req signInRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	session, err := h.service.SignIn(ctx, scope, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "sign-in failed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, sessionBody(session))
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.SignOut(ctx, requestcontext.ScopeID(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "sign-out failed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "sign in to change your password"))
		return
	}

	var req updatePasswordRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.UpdatePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetPasswordRequest struct {
	Email       string `json:"email,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Token       string `json:"token,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

// handleResetPassword serves both halves of the reset flow: a request with
// an email issues a reset token, a request with a token consumes it.
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetPasswordRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	switch {
	case req.Token != "":
		if err := h.service.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
			shared.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case req.Email != "":
		if err := h.service.RequestPasswordReset(ctx, req.Email, req.RedirectURL); err != nil {
			shared.WriteError(w, err)
			return
		}
		// Same answer whether or not the account exists.
		w.WriteHeader(http.StatusAccepted)

	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email or token required"))
	}
}

// handleSession reports the holder's current snapshot: the state machine
// the storefront renders from.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := h.registry.Get(ctx, requestcontext.ScopeID(ctx))
	shared.WriteJSON(w, http.StatusOK, snapshotBody(holder.Snapshot()))
}

// handleRecheck bypasses every cache layer and re-verifies admin status
// against the authoritative record.
func (h *Handler) handleRecheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := h.registry.Get(ctx, requestcontext.ScopeID(ctx))

	snap, err := holder.ForceRecheck(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			shared.WriteError(w, err)
			return
		}
		// Verification failed but the snapshot still says what the caller
		// is allowed to see right now.
		h.logger.WarnContext(ctx, "forced re-check failed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteJSON(w, http.StatusOK, snapshotBody(snap))
		return
	}
	shared.WriteJSON(w, http.StatusOK, snapshotBody(snap))
}

func sessionBody(session *models.Session) map[string]any {
	return map[string]any{
		"session_id":        session.ID.String(),
		"user_id":           session.UserID.String(),
		"access_token":      session.AccessToken,
		"access_expires_at": session.AccessExpiresAt.Format(time.RFC3339),
	}
}

func snapshotBody(snap authstate.Snapshot) map[string]any {
	body := map[string]any{
		"state":           string(snap.State),
		"is_admin":        snap.IsAdmin,
		"admin_confirmed": snap.AdminConfirmed,
	}
	if snap.Session != nil {
		body["user_id"] = snap.Session.UserID.String()
	}
	return body
}
