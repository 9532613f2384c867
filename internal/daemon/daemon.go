package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Status is the daemon runtime status.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

const queueSize = 64

// Options wires a Daemon. Conn, Janitor and ConfigPath are optional.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Dispatcher *Dispatcher
	Janitor    *Janitor
	Conn       *nats.Conn
	HTTP       *HTTPServer
	Logger     *slog.Logger
}

// Daemon runs queued tasks one at a time.
type Daemon struct {
	opts    Options
	logger  *slog.Logger
	cfg     atomic.Pointer[config.Config]
	queue   chan []byte
	status  atomic.Value
	started time.Time

	active    atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64
}

// New returns a Daemon.
func New(opts Options) *Daemon {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Daemon{
		opts:    opts,
		logger:  opts.Logger,
		queue:   make(chan []byte, queueSize),
		started: time.Now(),
	}
	d.cfg.Store(opts.Config)
	d.status.Store(StatusStarting)
	return d
}

// Status returns the current status.
func (d *Daemon) Status() Status { return d.status.Load().(Status) }

// Submit validates an envelope and queues it. It never blocks.
func (d *Daemon) Submit(data []byte) (*Envelope, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	select {
	case d.queue <- data:
		return env, nil
	default:
		return nil, errors.DaemonError("task queue is full").
			WithContext("capacity", queueSize).
			Build()
	}
}

// Run consumes tasks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfg.Load()

	if d.opts.Janitor != nil {
		stop, err := d.opts.Janitor.Schedule(ctx, parseDuration(cfg.Daemon.JanitorInterval, time.Hour))
		if err != nil {
			return errors.DaemonError("failed to start janitor").WithCause(err).Build()
		}
		defer func() { _ = stop() }()
	}

	if d.opts.ConfigPath != "" {
		watcher, err := NewConfigWatcher(d.opts.ConfigPath, d.Reload)
		if err != nil {
			return errors.DaemonError("failed to create config watcher").WithCause(err).Build()
		}
		if err := watcher.Start(ctx); err != nil {
			return errors.DaemonError("failed to start config watcher").WithCause(err).Build()
		}
		defer func() { _ = watcher.Stop() }()
	}

	var msgs chan *nats.Msg
	if d.opts.Conn != nil {
		msgs = make(chan *nats.Msg, queueSize)
		sub, err := d.opts.Conn.ChanQueueSubscribe(cfg.Daemon.Subject, cfg.Daemon.QueueGroup, msgs)
		if err != nil {
			return errors.DaemonError("failed to subscribe to task subject").
				WithCause(err).
				WithContext("subject", cfg.Daemon.Subject).
				Build()
		}
		defer func() { _ = sub.Unsubscribe() }()
		d.logger.InfoContext(ctx, "Subscribed to task queue",
			slog.String("subject", cfg.Daemon.Subject), slog.String("queue_group", cfg.Daemon.QueueGroup))
	}

	if d.opts.HTTP != nil {
		if err := d.opts.HTTP.Start(ctx, d); err != nil {
			return err
		}
		defer func() { _ = d.opts.HTTP.Stop(context.WithoutCancel(ctx)) }()
	}

	d.status.Store(StatusRunning)
	d.logger.InfoContext(ctx, "Daemon running")
	d.loop(ctx, msgs)
	d.status.Store(StatusStopping)
	return nil
}

// loop processes one task at a time from the NATS channel and the HTTP queue.
func (d *Daemon) loop(ctx context.Context, msgs <-chan *nats.Msg) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Daemon loop stopped by context cancellation")
			return
		case m := <-msgs:
			err := d.handle(ctx, m.Data)
			if m.Reply != "" {
				reply := []byte("ok")
				if err != nil {
					reply = []byte(err.Error())
				}
				if rerr := m.Respond(reply); rerr != nil {
					d.logger.Warn("Failed to reply to task message", logfields.Error(rerr))
				}
			}
		case data := <-d.queue:
			_ = d.handle(ctx, data)
		}
	}
}

func (d *Daemon) handle(ctx context.Context, data []byte) error {
	env, err := DecodeEnvelope(data)
	if err != nil {
		d.failed.Add(1)
		d.logger.WarnContext(ctx, "Dropping invalid task message", logfields.Error(err))
		return err
	}
	d.active.Add(1)
	defer d.active.Add(-1)

	start := time.Now()
	err = d.opts.Dispatcher.Dispatch(ctx, env)
	d.processed.Add(1)
	attrs := []any{slog.String("type", string(env.Type)), logfields.DurationMS(float64(time.Since(start).Milliseconds()))}
	if err != nil {
		d.failed.Add(1)
		d.logger.ErrorContext(ctx, "Task failed", append(attrs, logfields.Error(err))...)
		return err
	}
	d.logger.InfoContext(ctx, "Task finished", attrs...)
	return nil
}

// Reload applies the hot-reloadable parts of cfg. Transport settings need a restart.
func (d *Daemon) Reload(ctx context.Context, cfg *config.Config) error {
	old := d.cfg.Load()
	if old != nil && (old.Daemon.Subject != cfg.Daemon.Subject ||
		old.Daemon.QueueGroup != cfg.Daemon.QueueGroup ||
		old.Daemon.HTTPListen != cfg.Daemon.HTTPListen ||
		old.Daemon.NATSURL != cfg.Daemon.NATSURL) {
		d.logger.WarnContext(ctx, "Daemon transport settings changed, restart required for full effect")
	}
	if d.opts.Janitor != nil {
		d.opts.Janitor.Configure(cfg.Daemon.KeepVersions, parseDuration(cfg.Daemon.ArtifactRetention, 30*24*time.Hour))
	}
	d.cfg.Store(cfg)
	return nil
}

// Snapshot is the runtime view served on /healthz.
type Snapshot struct {
	Status    Status `json:"status"`
	Uptime    string `json:"uptime"`
	Active    int32  `json:"active"`
	Queued    int    `json:"queued"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
}

// Snapshot returns current counters.
func (d *Daemon) Snapshot() Snapshot {
	return Snapshot{
		Status:    d.Status(),
		Uptime:    time.Since(d.started).Round(time.Second).String(),
		Active:    d.active.Load(),
		Queued:    len(d.queue),
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
