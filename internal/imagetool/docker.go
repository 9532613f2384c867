// Package imagetool drives the docker CLI for image build, pull, tag and push.
package imagetool

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/command"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

// LineSink receives streamed command output.
type LineSink func(line string)

// Docker runs docker subcommands through a command.Runner.
type Docker struct {
	bin    []string
	runner command.Runner
	// pushPolicy bounds pull and push attempts.
	pushPolicy retry.Policy
}

// New returns a Docker client. bin may carry leading arguments ("sudo -P docker").
func New(bin string, runner command.Runner, attempts int) *Docker {
	fields := strings.Fields(bin)
	if len(fields) == 0 {
		fields = []string{"docker"}
	}
	if runner == nil {
		runner = command.Exec{}
	}
	if attempts <= 0 {
		attempts = 2
	}
	return &Docker{
		bin:        fields,
		runner:     runner,
		pushPolicy: retry.Policy{MaxRetries: attempts - 1}, // zero delay
	}
}

func (d *Docker) cmd(dir string, args ...string) command.Cmd {
	return command.Cmd{Name: d.bin[0], Args: append(append([]string{}, d.bin[1:]...), args...), Dir: dir}
}

// Build runs "docker build -t <image> [--no-cache] ." in contextDir.
func (d *Docker) Build(ctx context.Context, contextDir, image string, noCache bool, sink LineSink) error {
	args := []string{"build", "-t", image}
	if noCache {
		args = append(args, "--no-cache")
	}
	args = append(args, ".")
	return command.Stream(ctx, d.runner, d.cmd(contextDir, args...), sink)
}

// Push pushes image, retrying immediately once on failure.
func (d *Docker) Push(ctx context.Context, image string, sink LineSink) error {
	return d.withAttempts(ctx, func(ctx context.Context) error {
		return command.Stream(ctx, d.runner, d.cmd("", "push", image), sink)
	})
}

// Pull pulls image, retrying immediately once on failure.
func (d *Docker) Pull(ctx context.Context, image string, sink LineSink) error {
	return d.withAttempts(ctx, func(ctx context.Context) error {
		return command.Stream(ctx, d.runner, d.cmd("", "pull", image), sink)
	})
}

// Tag creates target referring to source.
func (d *Docker) Tag(ctx context.Context, source, target string) error {
	return command.Stream(ctx, d.runner, d.cmd("", "tag", source, target), nil)
}

// Relay pulls source, tags it as target and pushes target.
func (d *Docker) Relay(ctx context.Context, source, target string, sink LineSink) error {
	if err := d.Pull(ctx, source, sink); err != nil {
		return err
	}
	if source != target {
		if err := d.Tag(ctx, source, target); err != nil {
			return err
		}
	}
	return d.Push(ctx, target, sink)
}

// withAttempts retries without delay: pull and push retries are immediate.
func (d *Docker) withAttempts(ctx context.Context, fn func(context.Context) error) error {
	return d.pushPolicy.Do(ctx, nil, func(ctx context.Context, _ int) error { return fn(ctx) })
}
