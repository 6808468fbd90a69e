package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Notification types.
const (
	NotificationDefenceScheduled = "DEFENCE_SCHEDULED"
	NotificationDefenceStarted   = "DEFENCE_STARTED"
	NotificationResultsReady     = "DEFENCE_RESULTS_READY"
	NotificationStageApproved    = "STAGE_APPROVED"
	NotificationStageRejected    = "STAGE_REJECTED"
	NotificationSupervisorAssign = "SUPERVISOR_ASSIGNED"
	NotificationProjectUploaded  = "PROJECT_UPLOADED"
	NotificationProjectComment   = "PROJECT_COMMENT"
	NotificationProjectApproved  = "PROJECT_APPROVED"
)

// Notification is a message addressed to one identity. Only Read mutates.
type Notification struct {
	ID          string    `db:"id" json:"id"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Type        string    `db:"type" json:"type"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	Resource    string    `db:"resource" json:"resource,omitempty"`
	ResourceID  *string   `db:"resource_id" json:"resource_id,omitempty"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes a recipient's inbox listing.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Page        int
	PageSize    int
}

// ActivityLog is an append-only record of a mutating action.
type ActivityLog struct {
	ID         string         `db:"id" json:"id"`
	ActorID    *string        `db:"actor_id" json:"actor_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	Details    types.JSONText `db:"details" json:"details,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ActivityFilter captures filtering criteria for activity logs.
type ActivityFilter struct {
	ActorID  string
	Resource string
	Action   string
	Page     int
	PageSize int
}
