// Package handler exposes the recently-viewed list for the caller's
// browser-session scope.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopgate/internal/recent"
	"shopgate/internal/transport/http/shared"
	dErrors "shopgate/pkg/domain-errors"
	"shopgate/pkg/requestcontext"
)

// Handler handles /store/recent.
type Handler struct {
	store  recent.Store
	logger *slog.Logger
}

func New(store recent.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/store/recent", h.handleList)
	r.Post("/store/recent", h.handleRecord)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.store.List(ctx, requestcontext.ScopeID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list recently viewed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "recently viewed unavailable"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"product_ids": ids})
}

type recordRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.ProductID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "product_id is required"))
		return
	}

	if err := h.store.Record(ctx, requestcontext.ScopeID(ctx), req.ProductID); err != nil {
		h.logger.ErrorContext(ctx, "failed to record recently viewed",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "recently viewed unavailable"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
