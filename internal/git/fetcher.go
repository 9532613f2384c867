package git

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/buildworker/internal/config"
	ferrors "git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// CloneRequest describes one source fetch.
type CloneRequest struct {
	URL     string
	Branch  string // empty clones the remote HEAD
	Dest    string
	Timeout time.Duration
	// Reset is called before each retry to restore an empty Dest.
	Reset func() error
	// Observe, when set, is notified after each attempt in addition to the fetcher's observer.
	Observe AttemptObserver
}

// AttemptObserver is notified after each clone attempt.
type AttemptObserver func(attempt int, err error)

// Fetcher clones repositories.
type Fetcher struct {
	attempts int
	timeout  time.Duration
	username string
	token    string
	logger   *slog.Logger
	observe  AttemptObserver
}

// NewFetcher returns a Fetcher configured from cfg.
func NewFetcher(cfg config.CloneConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 2
	}
	return &Fetcher{
		attempts: attempts,
		timeout:  cfg.TimeoutDuration(),
		username: cfg.Username,
		token:    cfg.Token,
		logger:   logger,
	}
}

// WithObserver registers fn to be called after every attempt.
func (f *Fetcher) WithObserver(fn AttemptObserver) *Fetcher {
	f.observe = fn
	return f
}

// Clone fetches req.URL into req.Dest. Each attempt is bounded by req.Timeout
// (falling back to the configured timeout). Every failure is retried after Reset
// until the attempts run out; only a cancelled ctx stops early.
func (f *Fetcher) Clone(ctx context.Context, req CloneRequest) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			if req.Reset != nil {
				if err := req.Reset(); err != nil {
					return ferrors.FileSystemError("failed to reset workspace before clone retry").
						WithCause(err).
						WithContext("path", req.Dest).
						Build()
				}
			}
			f.logger.WarnContext(ctx, "Retrying clone", logfields.URL(req.URL), logfields.Attempt(attempt))
		}

		made = attempt
		lastErr = f.cloneOnce(ctx, req, timeout)
		if f.observe != nil {
			f.observe(attempt, lastErr)
		}
		if req.Observe != nil {
			req.Observe(attempt, lastErr)
		}
		if lastErr == nil {
			return nil
		}
		f.logger.WarnContext(ctx, "Clone attempt failed",
			logfields.URL(req.URL), logfields.Attempt(attempt), logfields.Error(lastErr))
		if ctx.Err() != nil {
			break
		}
	}

	return ferrors.GitError("failed to clone repository").
		WithCause(lastErr).
		WithContext("url", req.URL).
		WithContext("attempts", made).
		Build()
}

func (f *Fetcher) cloneOnce(ctx context.Context, req CloneRequest, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &git.CloneOptions{
		URL:  req.URL,
		Auth: authFor(req.URL, f.username, f.token),
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		opts.SingleBranch = true
	}

	start := time.Now()
	repo, err := git.PlainCloneContext(ctx, req.Dest, false, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &NetworkTimeoutError{Op: "clone", URL: req.URL, Err: err}
		}
		return classifyCloneError(req.URL, err)
	}

	attrs := []any{logfields.URL(req.URL), logfields.Path(req.Dest), logfields.DurationMS(float64(time.Since(start).Milliseconds()))}
	if ref, herr := repo.Head(); herr == nil {
		attrs = append(attrs, slog.String("commit", ref.Hash().String()[:8]))
	}
	f.logger.InfoContext(ctx, "Repository cloned successfully", attrs...)
	return nil
}
