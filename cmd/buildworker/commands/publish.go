package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/buildworker/internal/task"
)

// PublishCmd groups the share flows.
type PublishCmd struct {
	Image PublishImageCmd `cmd:"" help:"Replicate a built image to the region mirror (yb) or the market hub (ys)"`
	Slug  PublishSlugCmd  `cmd:"" help:"Copy a built slug to the publish root and upload it to the tier store"`
}

// PublishImageCmd implements 'publish image'.
type PublishImageCmd struct {
	TaskInput
}

func (p *PublishImageCmd) Run(g *Global, root *CLI) error {
	t, err := decode(p.TaskInput, func(r io.Reader) (*task.PublishTask, error) { return task.DecodePublishTask(r, true) })
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		if err := a.publisher.PublishImage(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published %s to %s\n", t.Image, t.Dest)
		return nil
	})
}

// PublishSlugCmd implements 'publish slug'.
type PublishSlugCmd struct {
	TaskInput
}

func (p *PublishSlugCmd) Run(g *Global, root *CLI) error {
	t, err := decode(p.TaskInput, func(r io.Reader) (*task.PublishTask, error) { return task.DecodePublishTask(r, false) })
	if err != nil {
		return err
	}
	return withApp(g, root, func(ctx context.Context, a *app) error {
		if err := a.publisher.PublishSlug(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published slug %s to %s\n", publishKey(t), t.Dest)
		return nil
	})
}

func publishKey(t *task.PublishTask) string { return t.ServiceKey + "/" + t.AppVersion }

// decode reads the task input with fn, closing it afterwards.
func decode[T any](input TaskInput, fn func(io.Reader) (T, error)) (T, error) {
	in, err := input.open()
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = in.Close() }()
	return fn(in)
}

// withApp loads the configuration, wires the worker and runs fn under a signal-aware context.
func withApp(g *Global, root *CLI, fn func(context.Context, *app) error) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(ctx, a)
}
