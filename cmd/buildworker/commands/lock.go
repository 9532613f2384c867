package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/lock"
)

// LockCmd groups lock inspection commands.
type LockCmd struct {
	Exists   LockExistsCmd   `cmd:"" help:"Print the lock id when held, exit non-zero otherwise"`
	Release  LockReleaseCmd  `cmd:"" help:"Delete a lock and its children"`
	Children LockChildrenCmd `cmd:"" help:"List the child entries of a lock"`
}

// LockTarget names one lock.
type LockTarget struct {
	Stage     string `arg:"" help:"Pipeline stage, e.g. build"`
	ServiceID string `arg:"" name:"service-id" help:"Service id"`
}

func (t LockTarget) id() string { return lock.ID(t.Stage, t.ServiceID) }

// withLock opens only the lock store; lock commands need nothing else.
func withLock(g *Global, root *CLI, fn func(context.Context, *lock.TaskLock) error) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, closeStore, err := lock.NewStore(ctx, cfg.Lock)
	if err != nil {
		return errors.LockError("failed to open lock store").WithCause(err).Build()
	}
	defer func() { _ = closeStore() }()
	return fn(ctx, lock.New(store, g.Logger))
}

// LockExistsCmd implements 'lock exists'.
type LockExistsCmd struct {
	LockTarget
}

// ErrLockNotHeld is returned by 'lock exists' for a free lock.
var ErrLockNotHeld = errors.LockError("lock not held").WithSeverity(errors.SeverityInfo).Build()

func (c *LockExistsCmd) Run(g *Global, root *CLI) error {
	return withLock(g, root, func(ctx context.Context, l *lock.TaskLock) error {
		if !l.Exists(ctx, c.id()) {
			return ErrLockNotHeld
		}
		fmt.Fprintln(os.Stdout, c.id())
		return nil
	})
}

// LockReleaseCmd implements 'lock release'.
type LockReleaseCmd struct {
	LockTarget
}

func (c *LockReleaseCmd) Run(g *Global, root *CLI) error {
	return withLock(g, root, func(ctx context.Context, l *lock.TaskLock) error {
		l.Release(ctx, c.id())
		fmt.Fprintf(os.Stdout, "Released %s\n", c.id())
		return nil
	})
}

// LockChildrenCmd implements 'lock children'.
type LockChildrenCmd struct {
	LockTarget
}

func (c *LockChildrenCmd) Run(g *Global, root *CLI) error {
	return withLock(g, root, func(ctx context.Context, l *lock.TaskLock) error {
		return printLines(os.Stdout, l.Children(ctx, c.id()))
	})
}

func printLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
