// Package models holds the identity domain types shared by the provider
// service, its stores, and the authorization state holder.
package models

import (
	"time"

	id "shopgate/pkg/domain"
)

// User captures the identity tracked by the gateway. The password hash never
// leaves the store layer except inside this struct, and never serializes.
type User struct {
	ID           id.UserID
	Email        string
	DisplayName  string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

// Session is the credential bundle issued at sign-in: a short-lived JWT
// access token plus an opaque rotating refresh token. Exactly one session is
// live per browser-session scope.
type Session struct {
	ID               id.SessionID
	UserID           id.UserID
	Scope            string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Device           string
	CreatedAt        time.Time
	LastActivity     time.Time
}

// AccessExpired reports whether the access token has passed its expiry.
func (s *Session) AccessExpired(now time.Time) bool {
	return now.After(s.AccessExpiresAt)
}

// RefreshExpired reports whether the refresh token can no longer rotate the
// session. This is the recoverable "please sign in again" condition.
func (s *Session) RefreshExpired(now time.Time) bool {
	return now.After(s.RefreshExpiresAt)
}

// Clone returns a deep copy so holders can hand out snapshots without
// exposing shared mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// ResetToken is a one-shot password reset credential.
type ResetToken struct {
	Token       string
	UserID      id.UserID
	RedirectURL string
	ExpiresAt   time.Time
	Used        bool
}

// AuthEventType enumerates the provider's change notifications.
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "signed_in"
	EventSignedOut      AuthEventType = "signed_out"
	EventTokenRefreshed AuthEventType = "token_refreshed"
)

// AuthEvent is one entry in a scope's ordered auth-change stream. Seq is
// monotonically increasing per scope; a consumer must let a newer event's
// effects supersede an older one's even when the older event spawned slower
// async work.
type AuthEvent struct {
	Seq     uint64
	Type    AuthEventType
	Scope   string
	UserID  id.UserID
	Session *Session
}
