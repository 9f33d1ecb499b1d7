// Package settings mirrors the singleton store-configuration row and keeps
// it synchronously readable on the request path. Writes are optimistic: the
// mirror updates first, the authoritative row second, and a rejected write
// restores the exact pre-image.
package settings

import (
	"math"
	"time"
)

// Settings is the store configuration. Exactly one authoritative row
// exists; Version increments on every accepted write and fences optimistic
// concurrency.
type Settings struct {
	Currency              string            `json:"currency"`
	TaxRate               float64           `json:"tax_rate"`
	FlatShippingFee       int64             `json:"flat_shipping_fee"`
	FreeShippingThreshold int64             `json:"free_shipping_threshold"`
	FeatureToggles        map[string]bool   `json:"feature_toggles"`
	Theme                 map[string]string `json:"theme"`
	Version               int64             `json:"version"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// Clone deep-copies the row, maps included. Rollback depends on the clone
// being a true pre-image, not an aliased one.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	cp := *s
	if s.FeatureToggles != nil {
		cp.FeatureToggles = make(map[string]bool, len(s.FeatureToggles))
		for k, v := range s.FeatureToggles {
			cp.FeatureToggles[k] = v
		}
	}
	if s.Theme != nil {
		cp.Theme = make(map[string]string, len(s.Theme))
		for k, v := range s.Theme {
			cp.Theme[k] = v
		}
	}
	return &cp
}

// ShippingCost derives the shipping charge for a cart total in minor
// currency units. Orders at or above the free-shipping threshold ship free;
// a zero threshold disables free shipping.
func (s *Settings) ShippingCost(cartTotal int64) int64 {
	if s.FreeShippingThreshold > 0 && cartTotal >= s.FreeShippingThreshold {
		return 0
	}
	return s.FlatShippingFee
}

// TaxAmount derives the tax for a subtotal in minor currency units,
// rounded half away from zero.
func (s *Settings) TaxAmount(subtotal int64) int64 {
	return int64(math.Round(float64(subtotal) * s.TaxRate))
}

// Defaults is the row a fresh store starts from before any admin has
// written configuration.
func Defaults() Settings {
	return Settings{
		Currency:              "USD",
		TaxRate:               0,
		FlatShippingFee:       0,
		FreeShippingThreshold: 0,
		FeatureToggles:        map[string]bool{},
		Theme:                 map[string]string{},
		Version:               1,
		UpdatedAt:             time.Now(),
	}
}
