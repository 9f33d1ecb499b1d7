package audit

import (
	"time"

	id "shopgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring:
	// sign-in failures, admin grants, denied privilege checks.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: sign-ins, token refreshes, settings changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Action    string
	Decision  string
	Reason    string
	// Scope is the browser-session scope the action happened under.
	Scope string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. an admin granting another user the admin flag.
	ActorID string
}

// AuditEvent names every action the gateway records.
type AuditEvent string

const (
	EventUserCreated       AuditEvent = "user_created"
	EventSignedIn          AuditEvent = "signed_in"
	EventSignedOut         AuditEvent = "signed_out"
	EventTokenRefreshed    AuditEvent = "token_refreshed"
	EventAuthFailed        AuditEvent = "auth_failed"
	EventPasswordChanged   AuditEvent = "password_changed"
	EventPasswordResetSent AuditEvent = "password_reset_sent"

	EventAdminGranted     AuditEvent = "admin_granted"
	EventAdminRevoked     AuditEvent = "admin_revoked"
	EventAdminCheckFailed AuditEvent = "admin_check_failed"
	EventAccessDenied     AuditEvent = "access_denied"

	EventSettingsUpdated    AuditEvent = "settings_updated"
	EventSettingsRolledBack AuditEvent = "settings_rolled_back"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventAuthFailed:       CategorySecurity,
	EventAdminGranted:     CategorySecurity,
	EventAdminRevoked:     CategorySecurity,
	EventAccessDenied:     CategorySecurity,
	EventPasswordChanged:  CategorySecurity,
	EventAdminCheckFailed: CategorySecurity,

	EventUserCreated:        CategoryOperations,
	EventSignedIn:           CategoryOperations,
	EventSignedOut:          CategoryOperations,
	EventTokenRefreshed:     CategoryOperations,
	EventPasswordResetSent:  CategoryOperations,
	EventSettingsUpdated:    CategoryOperations,
	EventSettingsRolledBack: CategoryOperations,
}

// Category returns the category for an event name, defaulting to operations
// for unknown actions.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}
