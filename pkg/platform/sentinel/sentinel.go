package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and provider adapters
// return these (optionally wrapped) so services can translate them into
// coded domain errors in one place.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists (duplicate key)
// - ErrExpired: session/token has passed its expiry
// - ErrAlreadyUsed: one-shot token (reset token, refresh token) consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
