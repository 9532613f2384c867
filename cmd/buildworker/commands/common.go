// Package commands implements the buildworker CLI subcommands.
package commands

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// Global carries state shared by subcommands after flag parsing.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"buildworker.yaml" env:"BUILDWORKER_CONFIG"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Override logging.format (text|json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build       BuildCmd       `cmd:"" help:"Clone, build and report one service version from a build task"`
	Publish     PublishCmd     `cmd:"" help:"Replicate an image or slug to a distribution tier"`
	Deploy      DeployCmd      `cmd:"" help:"Sync a marketplace image or slug locally and start the service"`
	ImportImage ImportImageCmd `cmd:"" name:"import-image" help:"Import an external image into the local registry"`
	Lock        LockCmd        `cmd:"" help:"Inspect and release task locks"`
	Events      EventsCmd      `cmd:"" help:"Print the event log of one event id"`
	Daemon      DaemonCmd      `cmd:"" help:"Consume tasks from NATS and HTTP until interrupted"`
	VersionCmd  VersionCmd     `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = newLogger(os.Stderr, c.Verbose, config.LogFormat(c.LogFormat), config.LogLevelInfo)
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the root config and reapplies logging from it. Flags win over the file.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	format := cfg.Logging.Format
	if c.LogFormat != "" {
		format = config.LogFormat(c.LogFormat)
	}
	g.Logger = newLogger(os.Stderr, c.Verbose, format, cfg.Logging.Level)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool, format config.LogFormat, level config.LogLevel) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level config.LogLevel) slog.Level {
	switch config.NormalizeLogLevel(string(level)) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TaskInput reads a task JSON document from a file, or stdin when the path is "-" or empty.
type TaskInput struct {
	File string `arg:"" optional:"" help:"Task JSON file (stdin when omitted or -)" default:"-"`
}

func (in TaskInput) open() (io.ReadCloser, error) {
	if in.File == "" || in.File == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(in.File)
	if err != nil {
		return nil, errors.FileSystemError("failed to open task file").
			WithCause(err).
			WithContext("path", in.File).
			Build()
	}
	return f, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
