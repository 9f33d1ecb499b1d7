// Package domain defines the typed identifiers shared across shopgate.
//
// IDs are distinct uuid-backed types so the compiler rejects cross-type
// assignment (a SessionID can never be passed where a UserID is expected).
// Parsing happens at trust boundaries only; internal code passes typed IDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "shopgate/pkg/domain-errors"
)

// UserID identifies a registered shopper or admin.
type UserID uuid.UUID

// SessionID identifies an issued authentication session.
type SessionID uuid.UUID

// String returns the canonical UUID string form.
func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseUserID parses and validates a user ID from its string form.
// Empty strings, malformed UUIDs, and the nil UUID are all rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseSessionID parses and validates a session ID from its string form.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
