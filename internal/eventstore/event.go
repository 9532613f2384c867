package eventstore

import "time"

// Entry is one event-log line bound to an event id.
type Entry struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	Step      string    `json:"step"`
	Status    string    `json:"status,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"time"`
}

// Version is a journaled build or publish result. The janitor prunes from this table.
type Version struct {
	ID        int64
	TenantID  string
	ServiceID string
	EventID   string
	Kind      string // image, code or slug
	Path      string
	Status    string // pending, success or failure
	CreatedAt time.Time
}

// Version statuses.
const (
	VersionPending = "pending"
	VersionSuccess = "success"
	VersionFailure = "failure"
)
