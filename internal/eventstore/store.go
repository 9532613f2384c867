// Package eventstore journals event-log lines and version records in SQLite.
package eventstore

import (
	"context"
	"time"
)

// Store persists event-log entries and version records.
type Store interface {
	// Append adds one event-log entry. A zero Timestamp is replaced by now.
	Append(ctx context.Context, e Entry) error

	// ByEventID returns the entries of one event in insertion order.
	ByEventID(ctx context.Context, eventID string) ([]Entry, error)

	// Range returns entries within a time range.
	Range(ctx context.Context, start, end time.Time) ([]Entry, error)

	// RecordVersion journals a version and returns its row id.
	RecordVersion(ctx context.Context, v Version) (int64, error)

	// SetVersionStatus sets the status of every version recorded for eventID.
	SetVersionStatus(ctx context.Context, eventID, status string) error

	// ExpiredVersions returns successful versions beyond the newest keep per service
	// that were created before cutoff, oldest first.
	ExpiredVersions(ctx context.Context, keep int, cutoff time.Time) ([]Version, error)

	// DeleteVersion removes a version row.
	DeleteVersion(ctx context.Context, id int64) error

	Close() error
}
