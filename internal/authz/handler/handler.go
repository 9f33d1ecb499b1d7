// Package handler exposes the admin-guarded surface: an overview endpoint
// and the grant/revoke operations on the authoritative admin record.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopgate/internal/authz"
	"shopgate/internal/guard"
	"shopgate/internal/transport/http/shared"
	id "shopgate/pkg/domain"
	dErrors "shopgate/pkg/domain-errors"
	"shopgate/pkg/platform/audit"
	"shopgate/pkg/requestcontext"
)

// AuditPublisher records grant and revoke actions and serves the per-user
// audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, userID id.UserID) ([]audit.Event, error)
}

// Handler handles /admin endpoints. Every route passes the authoritative
// admin guard first.
type Handler struct {
	admins  authz.AdminStore
	guard   *guard.Guard
	auditor AuditPublisher
	logger  *slog.Logger
}

func New(admins authz.AdminStore, g *guard.Guard, auditor AuditPublisher, logger *slog.Logger) *Handler {
	return &Handler{admins: admins, guard: g, auditor: auditor, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	admin := chi.NewRouter()
	// Reads render on the holder's (possibly optimistic) snapshot; the
	// grant/revoke mutations are enforced against the authoritative record.
	admin.With(h.guard.RequireAdmin).Get("/overview", h.handleOverview)
	admin.With(h.guard.RequireAdmin).Get("/audit", h.handleAudit)
	admin.With(h.guard.RequireAdminRecord).Post("/grant", h.handleGrant)
	admin.With(h.guard.RequireAdminRecord).Post("/revoke", h.handleRevoke)
	r.Mount("/admin", admin)
}

// handleOverview is the canonical admin-only page. Reaching it at all means
// the guard rendered, which is what the storefront cares about.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"admin":   true,
		"user_id": requestcontext.UserID(r.Context()).String(),
	})
}

// handleAudit lists a user's recorded actions. Unavailable when audit
// events flow to a write-only sink.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.auditor.List(ctx, target)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit trail unavailable"))
		return
	}

	body := make([]map[string]any, 0, len(events))
	for _, event := range events {
		body = append(body, map[string]any{
			"action":    event.Action,
			"category":  string(event.Category),
			"timestamp": event.Timestamp,
			"scope":     event.Scope,
			"actor_id":  event.ActorID,
			"reason":    event.Reason,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": target.String(),
		"events":  body,
	})
}

type adminChangeRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, true)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, false)
}

func (h *Handler) change(w http.ResponseWriter, r *http.Request, grant bool) {
	ctx := r.Context()

	var req adminChangeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	target, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	action := audit.EventAdminRevoked
	if grant {
		action = audit.EventAdminGranted
		err = h.admins.Grant(ctx, target)
	} else {
		err = h.admins.Revoke(ctx, target)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "admin record change failed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "admin record change failed"))
		return
	}

	h.logAudit(ctx, action, target)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logAudit(ctx context.Context, action audit.AuditEvent, target id.UserID) {
	if h.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:    target,
		Action:    string(action),
		ActorID:   requestcontext.UserID(ctx).String(),
		Scope:     requestcontext.ScopeID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := h.auditor.Emit(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "audit emit failed", "error", err, "action", event.Action)
	}
}
