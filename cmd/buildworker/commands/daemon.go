package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/daemon"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	HTTPListen string `name:"http-listen" help:"Override daemon.http_listen"`
	NoWatch    bool   `name:"no-watch" help:"Do not reload the configuration file on change"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if d.HTTPListen != "" {
		cfg.Daemon.HTTPListen = d.HTTPListen
	}
	configPath := root.Config
	if d.NoWatch {
		configPath = ""
	}
	return RunDaemon(cfg, configPath, g.Logger)
}

// httpAddr is the intake listener; the metrics listener stands in when only metrics are enabled.
func httpAddr(cfg *config.Config) string {
	if cfg.Daemon.HTTPListen != "" {
		return cfg.Daemon.HTTPListen
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Listen
	}
	return ""
}

func RunDaemon(cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts := daemon.Options{
		Config:     cfg,
		ConfigPath: configPath,
		Dispatcher: daemon.NewDispatcher(a.pipeline, a.publisher),
		Janitor: daemon.NewJanitor(a.store, a.local, cfg.Daemon.KeepVersions,
			durationOr(cfg.Daemon.ArtifactRetention, 30*24*time.Hour), logger),
		Logger: logger,
	}
	if cfg.Daemon.NATSURL != "" {
		nc, err := nats.Connect(cfg.Daemon.NATSURL,
			nats.Name("buildworker-"+a.workerID),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("Task queue disconnected", logfields.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("Task queue reconnected", logfields.URL(c.ConnectedUrl()))
			}),
		)
		if err != nil {
			return errors.NetworkError("failed to connect to task queue").
				WithCause(err).
				WithContext("url", cfg.Daemon.NATSURL).
				Build()
		}
		defer nc.Close()
		opts.Conn = nc
	}
	if addr := httpAddr(cfg); addr != "" {
		opts.HTTP = daemon.NewHTTPServer(addr, a.registry, logger)
	}
	if opts.Conn == nil && opts.HTTP == nil {
		return errors.ConfigError("daemon needs daemon.nats_url or daemon.http_listen").Build()
	}

	logger.Info("Starting daemon", logfields.Worker(a.workerID))
	if err := daemon.New(opts).Run(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}
	logger.Info("Daemon stopped")
	return nil
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
