// Package command runs external toolchain processes (docker, the slug compiler) and
// exposes their merged stdout/stderr as a lazy sequence of lines.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

const maxLineSize = 1 << 20

// Cmd describes one external invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// String renders the command line for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner starts processes. Exec is the production implementation.
type Runner interface {
	Start(ctx context.Context, c Cmd) (*Process, error)
}

// Exec starts real OS processes.
type Exec struct{}

// Start launches c. Cancelling ctx kills the process.
func (Exec) Start(ctx context.Context, c Cmd) (*Process, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	slog.DebugContext(ctx, "Starting command", logfields.Command(c.String()))
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, &ExitError{Command: c.String(), Code: -1, Err: err}
	}

	p := &Process{cmd: c, out: pr, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		_ = pw.Close()
		close(p.done)
	}()
	return p, nil
}

// Process is a started command. Callers drain Lines and then call Wait.
type Process struct {
	cmd     Cmd
	out     io.ReadCloser
	done    chan struct{}
	waitErr error

	drainOnce sync.Once
}

// Lines yields each output line without its trailing newline. The sequence ends when
// the process closes its output. It may be ranged over at most once.
func (p *Process) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(p.out)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}
}

// Wait discards any unread output, waits for exit and returns an *ExitError on failure.
func (p *Process) Wait() error {
	p.drainOnce.Do(func() { _, _ = io.Copy(io.Discard, p.out) })
	<-p.done
	if p.waitErr == nil {
		return nil
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExitError{Command: p.cmd.String(), Code: code, Err: p.waitErr}
}

// ExitError reports a command that failed to start or exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Stream runs c through r, forwarding every output line to sink, and returns the exit status.
func Stream(ctx context.Context, r Runner, c Cmd, sink func(line string)) error {
	p, err := r.Start(ctx, c)
	if err != nil {
		return err
	}
	for line := range p.Lines() {
		if sink != nil {
			sink(line)
		}
	}
	return p.Wait()
}
