// Package lock implements the advisory per-service build lock.
//
// A lock is an entry keyed "<stage>.<service_id>" in a hierarchical key/value
// store. Callers check Exists before doing work and skip when it reports true;
// nothing ever blocks waiting for a lock. Store failures are treated as "not held"
// so an unavailable coordination store never stops builds.
package lock

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// ErrHeld is returned by Store.Create when the key already exists.
var ErrHeld = errors.New("lock already held")

// Store is the coordination backend.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Create(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string, recursive bool) error
	Children(ctx context.Context, key string) ([]string, error)
}

// ID returns the lock key for a stage of a service.
func ID(stage, serviceID string) string {
	return stage + "." + serviceID
}

// TaskLock wraps a Store with fail-open semantics.
type TaskLock struct {
	store  Store
	logger *slog.Logger
}

// New returns a TaskLock over store.
func New(store Store, logger *slog.Logger) *TaskLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskLock{store: store, logger: logger}
}

// Exists reports whether id is held. Store errors are logged and reported as false.
func (l *TaskLock) Exists(ctx context.Context, id string) bool {
	ok, err := l.store.Exists(ctx, id)
	if err != nil {
		l.logger.WarnContext(ctx, "Lock store unavailable, treating lock as free",
			logfields.LockID(id), logfields.Error(err))
		return false
	}
	return ok
}

// Acquire creates the lock entry with payload as its owner value.
// It returns ErrHeld when another owner created the entry first.
func (l *TaskLock) Acquire(ctx context.Context, id string, payload []byte) error {
	if err := l.store.Create(ctx, id, payload); err != nil {
		if errors.Is(err, ErrHeld) {
			return ErrHeld
		}
		return err
	}
	l.logger.DebugContext(ctx, "Lock acquired", logfields.LockID(id))
	return nil
}

// Release deletes the lock and its children. Errors are logged, never returned.
func (l *TaskLock) Release(ctx context.Context, id string) {
	if err := l.store.Delete(ctx, id, true); err != nil {
		l.logger.WarnContext(ctx, "Failed to release lock", logfields.LockID(id), logfields.Error(err))
		return
	}
	l.logger.DebugContext(ctx, "Lock released", logfields.LockID(id))
}

// Children lists sub-entries of id. Store errors yield an empty list.
func (l *TaskLock) Children(ctx context.Context, id string) []string {
	children, err := l.store.Children(ctx, id)
	if err != nil {
		l.logger.WarnContext(ctx, "Failed to list lock children", logfields.LockID(id), logfields.Error(err))
		return nil
	}
	return children
}
