package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block critical flows on audit failures.
// - Secrets (passwords, tokens) never appear in Message or Metadata.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Status is "success" or "failure".
	Status string `json:"status" db:"status"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	// TargetUserID is the account the event is about (if different from the actor).
	TargetUserID string `json:"target_user_id,omitempty" db:"target_user_id"`

	EntityType string `json:"entity_type,omitempty" db:"entity_type"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventLogin              EventType = "auth.login"
	EventLogout             EventType = "auth.logout"
	EventTokenRefresh       EventType = "auth.refresh"
	EventPasswordChanged    EventType = "auth.password_changed"
	EventPasswordForgot     EventType = "auth.password_forgot"
	EventAccountCreated     EventType = "users.created"
	EventAccountUpdated     EventType = "users.updated"
	EventAccountDeleted     EventType = "users.deleted"
	EventAccountStatus      EventType = "users.status"
	EventPasswordReset      EventType = "users.password_reset"
	EventPermissionsUpdated EventType = "permissions.updated"
	EventRecordApproved     EventType = "records.approved"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
