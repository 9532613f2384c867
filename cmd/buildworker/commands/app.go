package commands

import (
	"context"
	stderrors "errors"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildworker/internal/build"
	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/controlplane"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/eventstore"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/git"
	"git.home.luguber.info/inful/buildworker/internal/imagetool"
	"git.home.luguber.info/inful/buildworker/internal/lock"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/metrics"
	"git.home.luguber.info/inful/buildworker/internal/pipeline"
	"git.home.luguber.info/inful/buildworker/internal/publish"
	"git.home.luguber.info/inful/buildworker/internal/registry"
	"git.home.luguber.info/inful/buildworker/internal/slugstore"
	"git.home.luguber.info/inful/buildworker/internal/task"
	"git.home.luguber.info/inful/buildworker/internal/workspace"
)

// app holds the wired components shared by the task commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	workerID string

	store    *eventstore.SQLiteStore
	events   *eventlog.Sink
	lock     *lock.TaskLock
	local    *registry.Client
	registry *prom.Registry

	pipeline  *pipeline.Pipeline
	publisher *publish.Publisher

	closers []func() error
}

// eventDBPath is the event journal location, next to the build logs unless configured.
func eventDBPath(cfg *config.Config) string {
	if cfg.EventLog.DBPath != "" {
		return cfg.EventLog.DBPath
	}
	return filepath.Join(cfg.Paths.LogRoot, "buildworker.db")
}

func openStore(cfg *config.Config) (*eventstore.SQLiteStore, error) {
	store, err := eventstore.NewSQLiteStore(eventDBPath(cfg))
	if err != nil {
		return nil, errors.StorageError("failed to open event store").
			WithCause(err).
			WithContext("path", eventDBPath(cfg)).
			Build()
	}
	return store, nil
}

func registryClient(host string, cfg config.RegistryConfig) *registry.Client {
	return registry.New(host, registry.Options{
		Insecure: cfg.Insecure,
		Username: cfg.Username,
		Password: cfg.Password,
	})
}

// newApp wires every component from cfg. Close must be called on the result.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, workerID: uuid.NewString(), registry: prom.NewRegistry()}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	sinkOpts := []eventlog.Option{
		eventlog.WithStore(store),
		eventlog.WithLocale(cfg.EventLog.Locale),
		eventlog.WithLogger(logger),
	}
	if cfg.EventLog.NATSURL != "" {
		nc, err := nats.Connect(cfg.EventLog.NATSURL, nats.Name("buildworker-eventlog"))
		if err != nil {
			_ = a.Close()
			return nil, errors.NetworkError("failed to connect event log publisher").
				WithCause(err).
				WithContext("url", cfg.EventLog.NATSURL).
				Build()
		}
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		sinkOpts = append(sinkOpts, eventlog.WithPublisher(nc, cfg.EventLog.SubjectPrefix))
	}
	a.events = eventlog.NewSink(sinkOpts...)

	lockStore, closeLock, err := lock.NewStore(ctx, cfg.Lock)
	switch {
	case stderrors.Is(err, lock.ErrUnavailable):
		logger.WarnContext(ctx, "Lock store unreachable, builds run without locking",
			slog.String("backend", string(cfg.Lock.Backend)), logfields.Error(err))
		lockStore = lock.Unavailable(err)
	case err != nil:
		_ = a.Close()
		return nil, errors.LockError("failed to open lock store").
			WithCause(err).
			WithContext("backend", string(cfg.Lock.Backend)).
			Build()
	}
	a.closers = append(a.closers, closeLock)
	a.lock = lock.New(lockStore, logger)

	recorder := metrics.NewPrometheusRecorder(a.registry)
	cp := controlplane.New(cfg.ControlPlane, logger)
	reporter := controlplane.NewReporter(cp)
	rollout := controlplane.NewRollout(cp)
	docker := imagetool.New(cfg.Build.DockerBin, nil, cfg.Build.PushAttempts)
	layout := workspace.NewLayout(cfg.Paths)
	a.local = registryClient(cfg.Registry.Local, cfg.Registry)

	a.pipeline = pipeline.New(pipeline.Deps{
		Lock:         a.lock,
		Layout:       layout,
		Fetcher:      git.NewFetcher(cfg.Clone, logger),
		ImageBuilder: build.NewImageBuilder(cfg.Registry.Local, docker, cp, logger),
		SlugBuilder:  build.NewSlugBuilder(cfg.Build.SlugCompiler, nil, logger),
		Reporter:     reporter,
		Rollout:      rollout,
		Versions:     store,
		Events:       a.events,
		Recorder:     recorder,
		WorkerID:     a.workerID,
	})

	region, err := a.tier(string(task.DestLocal), cfg.Registry.Mirror, cfg.Registry.MirrorEnabled, cfg.Slug.Region)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	market, err := a.tier(string(task.DestMarket), cfg.Registry.Hub, cfg.Registry.HubEnabled, cfg.Slug.Market)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.publisher = publish.New(publish.Deps{
		Local:       a.local,
		LocalHost:   cfg.Registry.Local,
		Region:      region,
		Market:      market,
		Docker:      docker,
		Layout:      layout,
		PublishRoot: cfg.Slug.PublishRoot,
		Notifier:    controlplane.NewPublishNotifier(cp),
		Reporter:    reporter,
		Rollout:     rollout,
		Events:      a.events,
		Recorder:    recorder,
		Logger:      logger,
	})

	logger.DebugContext(ctx, "Worker wired",
		logfields.Worker(a.workerID),
		slog.String("lock_backend", string(cfg.Lock.Backend)),
		logfields.Path(eventDBPath(cfg)))
	return a, nil
}

func (a *app) tier(name, host string, imageEnabled bool, slugs config.SlugStoreConfig) (publish.Tier, error) {
	t := publish.Tier{Name: name, Host: host, Namespace: a.cfg.Registry.Namespace}
	if imageEnabled && host != "" {
		t.Registry = registryClient(host, a.cfg.Registry)
	}
	s, err := slugstore.New(slugs)
	if err != nil {
		return t, err
	}
	t.Slugs = s
	return t, nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
