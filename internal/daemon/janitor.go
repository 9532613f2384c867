package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/buildworker/internal/eventstore"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/registry"
)

// VersionStore is the journal the janitor prunes. *eventstore.SQLiteStore implements it.
type VersionStore interface {
	ExpiredVersions(ctx context.Context, keep int, cutoff time.Time) ([]eventstore.Version, error)
	DeleteVersion(ctx context.Context, id int64) error
}

// ImageDeleter removes manifests from the local registry. *registry.Client implements it.
type ImageDeleter interface {
	Host() string
	DeleteImage(ctx context.Context, repository, tag string) error
}

// Janitor removes artifacts of versions past the retention window, keeping the
// newest versions of every service.
type Janitor struct {
	store    VersionStore
	registry ImageDeleter
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	keep      int
	retention time.Duration
}

// NewJanitor returns a Janitor. registry may be nil, in which case image versions are only forgotten.
func NewJanitor(store VersionStore, reg ImageDeleter, keep int, retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: store, registry: reg, logger: logger, now: time.Now, keep: keep, retention: retention}
}

// Configure replaces the retention tunables.
func (j *Janitor) Configure(keep int, retention time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keep, j.retention = keep, retention
}

func (j *Janitor) limits() (int, time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.keep, j.retention
}

// Sweep prunes once and returns how many versions were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	keep, retention := j.limits()
	expired, err := j.store.ExpiredVersions(ctx, keep, j.now().Add(-retention))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, v := range expired {
		if err := j.removeArtifact(ctx, v); err != nil {
			j.logger.WarnContext(ctx, "Failed to remove expired artifact",
				logfields.ServiceID(v.ServiceID), logfields.Path(v.Path), logfields.Error(err))
			continue
		}
		if err := j.store.DeleteVersion(ctx, v.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		j.logger.InfoContext(ctx, "Pruned expired versions", slog.Int("count", removed))
	}
	return removed, nil
}

func (j *Janitor) removeArtifact(ctx context.Context, v eventstore.Version) error {
	switch v.Kind {
	case "image":
		// shared base images are never pruned
		if strings.Contains(v.Path, "builder") || strings.Contains(v.Path, "runner") {
			return nil
		}
		ref := registry.ParseReference(v.Path)
		if j.registry == nil || ref.Host != j.registry.Host() {
			return nil
		}
		return j.registry.DeleteImage(ctx, ref.Repository(), ref.Tag)
	default:
		err := os.Remove(v.Path)
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
}

// Schedule runs Sweep every interval on a gocron scheduler. The returned stop
// function shuts the scheduler down.
func (j *Janitor) Schedule(ctx context.Context, interval time.Duration) (func() error, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := j.Sweep(ctx); err != nil {
				j.logger.ErrorContext(ctx, "Janitor sweep failed", logfields.Error(err))
			}
		}),
		gocron.WithName("artifact-janitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create janitor job: %w", err)
	}
	s.Start()
	j.logger.InfoContext(ctx, "Janitor scheduled", slog.Duration("interval", interval))
	return s.Shutdown, nil
}
