package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/command"
	"git.home.luguber.info/inful/buildworker/internal/eventlog"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/slugstore"
)

// SlugBuilder runs the external buildpack compiler and validates its tarball.
type SlugBuilder struct {
	compiler []string
	runner   command.Runner
	logger   *slog.Logger
}

// NewSlugBuilder takes the compiler command with its leading args, e.g. ["perl", "build.pl"].
func NewSlugBuilder(compiler []string, runner command.Runner, logger *slog.Logger) *SlugBuilder {
	if len(compiler) == 0 {
		compiler = []string{"perl", "plugins/scripts/build.pl"}
	}
	if runner == nil {
		runner = command.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlugBuilder{compiler: compiler, runner: runner, logger: logger}
}

// PackagePath is where the compiler writes the tarball for version.
func PackagePath(artifactDir, version string) string {
	return filepath.Join(artifactDir, version+".tgz")
}

func (b *SlugBuilder) Build(ctx context.Context, req Request) (*Artifact, error) {
	t := req.Task
	ws := req.Workspace
	log := req.Log.WithStep("build-code")
	log.Info(eventlog.MsgSlugBuildStart)

	if t.NoCache() {
		if err := ws.ClearCache(); err != nil {
			b.logger.Warn("Failed to clear build cache", logfields.Path(ws.CacheDir), logfields.Error(err))
		}
	}

	pkg := PackagePath(ws.ArtifactDir, t.DeployVersion)
	c := b.command(req, pkg)
	b.logger.Debug("Running slug compiler", logfields.Command(c.String()), logfields.ServiceID(t.ServiceID))

	if err := command.Stream(ctx, b.runner, c, log.Output); err != nil {
		log.Failure(eventlog.MsgSlugBuildFailed, err.Error())
		return nil, wrap(ErrBuildCommand, err, "command", c.Name)
	}

	info, err := os.Stat(pkg)
	switch {
	case err != nil:
		log.Failure(eventlog.MsgSlugEmpty, pkg)
		return nil, wrap(ErrMissingArtifact, err, "path", pkg)
	case info.Size() == 0:
		log.Failure(eventlog.MsgSlugEmpty, pkg)
		return nil, wrap(ErrEmptyArtifact, fmt.Errorf("%s is 0 bytes", pkg), "path", pkg)
	}

	digest, err := slugstore.Digest(pkg)
	if err != nil {
		log.Failure(eventlog.MsgSlugBuildFailed, err.Error())
		return nil, wrap(ErrArtifactDigest, err, "path", pkg)
	}

	log.Info(eventlog.MsgSlugReady, pkg)
	return &Artifact{Kind: KindSlug, Slug: &SlugRef{Path: pkg, Digest: digest}}, nil
}

func (b *SlugBuilder) command(req Request, pkg string) command.Cmd {
	t := req.Task
	ws := req.Workspace
	version := t.DeployVersion

	args := append([]string{}, b.compiler[1:]...)
	args = append(args,
		"-b", t.Branch,
		"-s", ws.SourceDir,
		"-c", ws.CacheDir,
		"-d", ws.ArtifactDir,
		"-v", version,
		"-l", strings.TrimSuffix(pkg, ".tgz")+".log",
		"-tid", t.TenantID,
		"-sid", t.ServiceID,
		"--name", prefix(t.ServiceID, 8)+"_"+version,
	)
	if envs := t.CompilerEnvs(); len(envs) > 0 {
		args = append(args, "-e", joinEnvs(envs))
	}
	return command.Cmd{Name: b.compiler[0], Args: args}
}

// joinEnvs renders k=v pairs joined by ":::" in key order.
func joinEnvs(envs map[string]string) string {
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+envs[k])
	}
	return strings.Join(parts, ":::")
}
