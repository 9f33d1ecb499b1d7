// Package guard makes the route-level authorization decision from the
// holder's current snapshot. It never performs network calls of its own:
// the snapshot is whatever the holder knows right now, which keeps guard
// decisions instant and deterministic.
package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"shopgate/internal/authstate"
	"shopgate/internal/platform/metrics"
	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/audit"
	"shopgate/pkg/requestcontext"
)

// Outcome is what the guard decided to do with a request.
type Outcome string

const (
	// OutcomeRender lets the request through.
	OutcomeRender Outcome = "render"
	// OutcomeRedirect sends the browser to sign-in, preserving the
	// requested path for the post-sign-in return trip.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeDenied refuses a signed-in caller who lacks the privilege.
	// Denied is terminal for this request but names the manual re-check
	// action, never a redirect that could loop.
	OutcomeDenied Outcome = "denied"
	// OutcomeLoading means the holder has not settled yet. The caller is
	// told to retry shortly; an unsettled state never causes a redirect.
	OutcomeLoading Outcome = "loading"
)

// Level is the privilege a route demands.
type Level int

const (
	LevelAuthenticated Level = iota
	LevelAdmin
)

// Decide maps a holder snapshot to an outcome. Pure so the decision table
// is testable without HTTP.
func Decide(snap authstate.Snapshot, level Level) Outcome {
	switch snap.State {
	case authstate.StateUninitialized, authstate.StateLoading:
		return OutcomeLoading
	case authstate.StateAnonymous:
		return OutcomeRedirect
	}

	if level == LevelAuthenticated {
		return OutcomeRender
	}

	// Admin routes: optimistic admin renders just like confirmed admin;
	// the background verification settles the difference. Everything else
	// signed-in is denied, including the unknown role, which fails closed.
	if snap.State == authstate.StateAdmin {
		return OutcomeRender
	}
	return OutcomeDenied
}

// Guard turns holder snapshots into HTTP middleware.
type Guard struct {
	registry   *authstate.Registry
	signInPath string
	recheckURL string
	admins     AdminRecord
	auditor    AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// AuditPublisher records denied privilege checks.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AdminRecord is the authoritative admin source. Privileged mutations are
// enforced against it directly; snapshot state only gates reads.
type AdminRecord interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
}

func New(registry *authstate.Registry, signInPath string, admins AdminRecord, auditor AuditPublisher, m *metrics.Metrics, logger *slog.Logger) *Guard {
	if signInPath == "" {
		signInPath = "/signin"
	}
	return &Guard{
		registry:   registry,
		signInPath: signInPath,
		recheckURL: "/auth/recheck",
		admins:     admins,
		auditor:    auditor,
		metrics:    m,
		logger:     logger,
	}
}

// RequireAuthenticated guards routes any signed-in user may use.
func (g *Guard) RequireAuthenticated(next http.Handler) http.Handler {
	return g.middleware(next, LevelAuthenticated)
}

// RequireAdmin guards privileged read routes. An optimistic, unconfirmed
// admin renders here while background verification settles.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.middleware(next, LevelAdmin)
}

// RequireAdminRecord guards privileged mutations. The snapshot decision runs
// first so anonymous and loading callers get the usual answers, then the
// actor is checked against the authoritative admin record. Cached or
// optimistic status is never enough to mutate, and a revocation takes effect
// here immediately regardless of what any holder still remembers.
func (g *Guard) RequireAdminRecord(next http.Handler) http.Handler {
	return g.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := requestcontext.UserID(ctx)

		isAdmin, err := g.admins.IsAdmin(ctx, userID)
		if err != nil {
			g.logger.ErrorContext(ctx, "authoritative admin check failed",
				"error", err, "request_id", requestcontext.RequestID(ctx))
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "admin record unavailable",
			})
			return
		}
		if !isAdmin {
			g.metrics.GuardDecision(string(OutcomeDenied))
			g.auditDenied(ctx, userID)
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":       "admin access required",
				"recheck_url": g.recheckURL,
				"retryable":   false,
			})
			return
		}
		next.ServeHTTP(w, r)
	}), LevelAdmin)
}

func (g *Guard) middleware(next http.Handler, level Level) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		scope := requestcontext.ScopeID(ctx)
		holder := g.registry.Get(ctx, scope)
		snap := holder.Snapshot()

		outcome := Decide(snap, level)
		g.metrics.GuardDecision(string(outcome))

		switch outcome {
		case OutcomeRender:
			if snap.Session != nil {
				ctx = requestcontext.WithUserID(ctx, snap.Session.UserID)
				ctx = requestcontext.WithSessionID(ctx, snap.Session.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))

		case OutcomeRedirect:
			target := g.signInPath + "?redirect_to=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)

		case OutcomeLoading:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "authorization state is still loading",
			})

		case OutcomeDenied:
			g.auditDenied(ctx, snap.UserID())
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":       "admin access required",
				"recheck_url": g.recheckURL,
				// An unsettled role may flip after a successful re-check;
				// a confirmed non-admin will not.
				"retryable": !snap.AdminConfirmed,
			})
		}
	})
}

func (g *Guard) auditDenied(ctx context.Context, userID id.UserID) {
	if g.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:    userID,
		Action:    string(audit.EventAccessDenied),
		Decision:  "denied",
		Scope:     requestcontext.ScopeID(ctx),
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := g.auditor.Emit(ctx, event); err != nil {
		g.logger.ErrorContext(ctx, "audit emit failed", "error", err, "action", event.Action)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
