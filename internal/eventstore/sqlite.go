package eventstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates the journal.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		step TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_event_id ON events(event_id);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

	CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_versions_service ON versions(service_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_versions_event_id ON versions(event_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new entry to the store.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (event_id, step, status, level, message, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		e.EventID, e.Step, e.Status, e.Level, e.Message, e.Timestamp.UnixNano(),
	)
	if err != nil {
		return wrap(ErrEventAppendFailed, err)
	}
	return nil
}

// ByEventID retrieves all entries for one event.
func (s *SQLiteStore) ByEventID(ctx context.Context, eventID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, step, status, level, message, timestamp FROM events WHERE event_id = ? ORDER BY id",
		eventID,
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Range retrieves entries within a time range.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, step, status, level, message, timestamp FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.EventID, &e.Step, &e.Status, &e.Level, &e.Message, &ts); err != nil {
			return nil, wrap(ErrEventQueryFailed, err)
		}
		e.Timestamp = time.Unix(0, ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	return entries, nil
}

// RecordVersion inserts a version row.
func (s *SQLiteStore) RecordVersion(ctx context.Context, v Version) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if v.Status == "" {
		v.Status = VersionPending
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO versions (tenant_id, service_id, event_id, kind, path, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		v.TenantID, v.ServiceID, v.EventID, v.Kind, v.Path, v.Status, v.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, wrap(ErrVersionWriteFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap(ErrVersionWriteFailed, err)
	}
	return id, nil
}

// SetVersionStatus updates the status of the versions recorded under eventID.
func (s *SQLiteStore) SetVersionStatus(ctx context.Context, eventID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "UPDATE versions SET status = ? WHERE event_id = ?", status, eventID); err != nil {
		return wrap(ErrVersionWriteFailed, err)
	}
	return nil
}

// ExpiredVersions walks successful versions newest first per service and returns
// those past the keep window and older than cutoff.
func (s *SQLiteStore) ExpiredVersions(ctx context.Context, keep int, cutoff time.Time) ([]Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, service_id, event_id, kind, path, status, created_at FROM versions
		 WHERE status = ? ORDER BY service_id, created_at DESC, id DESC`,
		VersionSuccess,
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer rows.Close()

	seen := make(map[string]int)
	var expired []Version
	for rows.Next() {
		var v Version
		var created int64
		if err := rows.Scan(&v.ID, &v.TenantID, &v.ServiceID, &v.EventID, &v.Kind, &v.Path, &v.Status, &created); err != nil {
			return nil, wrap(ErrEventQueryFailed, err)
		}
		v.CreatedAt = time.Unix(0, created)
		seen[v.ServiceID]++
		if seen[v.ServiceID] <= keep || !v.CreatedAt.Before(cutoff) {
			continue
		}
		expired = append(expired, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}

	// oldest first
	for i, j := 0, len(expired)-1; i < j; i, j = i+1, j-1 {
		expired[i], expired[j] = expired[j], expired[i]
	}
	return expired, nil
}

// DeleteVersion removes one version row.
func (s *SQLiteStore) DeleteVersion(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM versions WHERE id = ?", id); err != nil {
		return wrap(ErrVersionWriteFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
