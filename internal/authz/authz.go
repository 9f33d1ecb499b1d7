// Package authz owns the admin authority: the authoritative admin_users
// record, the persisted per-scope flag cache in front of it, and the bounded
// verifier the authorization holder runs in the background.
//
// The cache trust policy is asymmetric by contract: a persisted "true" may
// optimistically unblock an admin UI while verification runs, but a
// persisted "false" is never trusted — it is always re-verified, so a stale
// false can't lock a real admin out after a slow or failed re-check.
package authz

import (
	"context"

	id "shopgate/pkg/domain"
)

// Flag is the tri-state result of reading the persisted admin flag.
type Flag int

const (
	// FlagUnknown means no usable cached value: missing key, corrupted
	// value, anything that is not exactly "true" or "false".
	FlagUnknown Flag = iota
	// FlagTrue is the only value the optimistic path may trust.
	FlagTrue
	// FlagFalse is remembered but never trusted; it always re-verifies.
	FlagFalse
)

// ParseFlag maps a raw persisted string onto a Flag. Only the exact strings
// "true" and "false" parse; a truthy-looking corruption like "1" or "TRUE"
// is unknown, which fails closed.
func ParseFlag(raw string) Flag {
	switch raw {
	case "true":
		return FlagTrue
	case "false":
		return FlagFalse
	default:
		return FlagUnknown
	}
}

// String renders the persisted wire form.
func (f Flag) String() string {
	switch f {
	case FlagTrue:
		return "true"
	case FlagFalse:
		return "false"
	default:
		return "unknown"
	}
}

// AdminStore is the authoritative source of the admin attribute. Privileged
// writes are enforced against this store at the boundary, never against any
// cache.
type AdminStore interface {
	IsAdmin(ctx context.Context, userID id.UserID) (bool, error)
	Grant(ctx context.Context, userID id.UserID) error
	Revoke(ctx context.Context, userID id.UserID) error
}

// FlagStore is the persisted layer of the two-layer admin cache, keyed by
// (scope, user) so separate browser sessions never share cached trust.
type FlagStore interface {
	Get(ctx context.Context, scope string, userID id.UserID) (Flag, error)
	Set(ctx context.Context, scope string, userID id.UserID, isAdmin bool) error
	Delete(ctx context.Context, scope string, userID id.UserID) error
	// PurgeScope drops every flag persisted for a scope; used on sign-out.
	PurgeScope(ctx context.Context, scope string) error
}
