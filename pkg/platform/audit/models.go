package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers issuance and registry changes that must be
	// reconstructible later.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers role changes and rejected attestations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as sign-ins.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	// ActorID is the hex address of the caller that performed the action.
	ActorID string
	// Subject is the address or record the action applied to.
	Subject       string
	Action        string
	AchievementID string
	TokenID       string
	Decision      string
	Reason        string
	RequestID     string
	ClientIP      string
	UserAgent     string
}

type AuditEvent string

const (
	EventAchievementAdded       AuditEvent = "achievement_added"
	EventAchievementUnlocked    AuditEvent = "achievement_unlocked"
	EventUnlockRejected         AuditEvent = "unlock_rejected"
	EventAdminChanged           AuditEvent = "admin_changed"
	EventPermissionGiverChanged AuditEvent = "permission_giver_changed"
	EventRolesInitialized       AuditEvent = "roles_initialized"
	EventCallerSignedIn         AuditEvent = "caller_signed_in"
	EventSignInFailed           AuditEvent = "sign_in_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAchievementAdded:    CategoryCompliance,
	EventAchievementUnlocked: CategoryCompliance,
	EventRolesInitialized:    CategoryCompliance,

	EventUnlockRejected:         CategorySecurity,
	EventAdminChanged:           CategorySecurity,
	EventPermissionGiverChanged: CategorySecurity,
	EventSignInFailed:           CategorySecurity,

	EventCallerSignedIn: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
