package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// ReloadFunc applies a freshly loaded configuration.
type ReloadFunc func(ctx context.Context, cfg *config.Config) error

// ConfigWatcher reloads the worker configuration when its file changes.
// Bursts of events within debounceTime collapse into one reload.
type ConfigWatcher struct {
	path         string
	apply        ReloadFunc
	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, apply ReloadFunc) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &ConfigWatcher{
		path:         absPath,
		apply:        apply,
		watcher:      watcher,
		debounceTime: 2 * time.Second,
		done:         make(chan struct{}),
	}, nil
}

// Start watches the directory of the config file; editors often replace the file itself.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	slog.InfoContext(ctx, "Watching configuration file", logfields.Path(cw.path))
	go cw.run(ctx)
	return nil
}

// Stop ends the watch loop. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.done)
		err = cw.watcher.Close()
	})
	return err
}

func (cw *ConfigWatcher) run(ctx context.Context) {
	timer := time.NewTimer(cw.debounceTime)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Base(cw.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.done:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op.Has(fsnotify.Remove) {
				slog.WarnContext(ctx, "Config file removed, keeping current configuration", logfields.Path(ev.Name))
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				timer.Reset(cw.debounceTime)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.ErrorContext(ctx, "Config watcher error", logfields.Error(err))
		case <-timer.C:
			if err := cw.reload(ctx); err != nil {
				slog.ErrorContext(ctx, "Configuration reload failed, keeping current configuration", logfields.Error(err))
			}
		}
	}
}

func (cw *ConfigWatcher) reload(ctx context.Context) error {
	cfg, err := config.Load(cw.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", cw.path, err)
	}
	if err := cw.apply(ctx, cfg); err != nil {
		return fmt.Errorf("apply configuration: %w", err)
	}
	slog.InfoContext(ctx, "Configuration reloaded", logfields.Path(cw.path))
	return nil
}
