// Package handler exposes the store settings mirror over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shopgate/internal/guard"
	"shopgate/internal/settings"
	"shopgate/internal/transport/http/shared"
	dErrors "shopgate/pkg/domain-errors"
	"shopgate/pkg/requestcontext"
)

// Handler handles /store/settings and /store/quote.
type Handler struct {
	mirror *settings.Mirror
	guard  *guard.Guard
	logger *slog.Logger
}

func New(mirror *settings.Mirror, g *guard.Guard, logger *slog.Logger) *Handler {
	return &Handler{mirror: mirror, guard: g, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/store/settings", h.handleGet)
	r.With(h.guard.RequireAdminRecord).Put("/store/settings", h.handlePut)
	r.Get("/store/quote", h.handleQuote)
}

type settingsBody struct {
	Currency              string            `json:"currency"`
	TaxRate               float64           `json:"tax_rate"`
	FlatShippingFee       int64             `json:"flat_shipping_fee"`
	FreeShippingThreshold int64             `json:"free_shipping_threshold"`
	FeatureToggles        map[string]bool   `json:"feature_toggles"`
	Theme                 map[string]string `json:"theme"`
	Version               int64             `json:"version"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

func toBody(row settings.Settings) settingsBody {
	return settingsBody{
		Currency:              row.Currency,
		TaxRate:               row.TaxRate,
		FlatShippingFee:       row.FlatShippingFee,
		FreeShippingThreshold: row.FreeShippingThreshold,
		FeatureToggles:        row.FeatureToggles,
		Theme:                 row.Theme,
		Version:               row.Version,
		UpdatedAt:             row.UpdatedAt,
	}
}

// handleGet is the public synchronous read: always the mirror, never the
// backing store.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, toBody(h.mirror.Current()))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req settingsBody
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	row, err := h.mirror.Update(ctx, settings.Settings{
		Currency:              req.Currency,
		TaxRate:               req.TaxRate,
		FlatShippingFee:       req.FlatShippingFee,
		FreeShippingThreshold: req.FreeShippingThreshold,
		FeatureToggles:        req.FeatureToggles,
		Theme:                 req.Theme,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "settings update rejected",
			"request_id", requestcontext.RequestID(ctx), "error", err.Error())
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toBody(row))
}

// handleQuote derives shipping and tax for a subtotal from the mirrored
// row, no remote reads involved.
func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	subtotal, err := strconv.ParseInt(r.URL.Query().Get("subtotal"), 10, 64)
	if err != nil || subtotal < 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subtotal must be a non-negative integer"))
		return
	}

	shipping, tax, currency := h.mirror.Quote(subtotal)
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"subtotal": subtotal,
		"shipping": shipping,
		"tax":      tax,
		"total":    subtotal + shipping + tax,
		"currency": currency,
	})
}
