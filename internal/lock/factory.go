package lock

import (
	"context"
	"errors"
	"fmt"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

// ErrUnavailable wraps connection failures of a remote backend.
var ErrUnavailable = errors.New("lock store unavailable")

// NewStore builds the Store selected by cfg. The returned close function is never nil.
func NewStore(ctx context.Context, cfg config.LockConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.LockBackendNATS:
		s, err := NewNATSStore(ctx, cfg.NATSURL, cfg.Bucket)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return s, s.Close, nil
	case config.LockBackendConsul:
		s, err := NewConsulStore(cfg.ConsulAddr, cfg.ConsulPrefix)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return s, noop, nil
	case config.LockBackendMemory, "":
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// Unavailable returns a Store that fails every call with err. A TaskLock over it
// reports every lock as free and never acquires one.
func Unavailable(err error) Store {
	return unavailableStore{err: err}
}

type unavailableStore struct{ err error }

func (s unavailableStore) Exists(context.Context, string) (bool, error)       { return false, s.err }
func (s unavailableStore) Create(context.Context, string, []byte) error       { return s.err }
func (s unavailableStore) Delete(context.Context, string, bool) error         { return s.err }
func (s unavailableStore) Children(context.Context, string) ([]string, error) { return nil, s.err }
