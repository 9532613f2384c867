package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// Workspace is the set of directories used by one service's builds.
type Workspace struct {
	SourceDir   string
	CacheDir    string
	ArtifactDir string
	LogDir      string
}

// LogFile is the compiler log path inside LogDir.
func (w Workspace) LogFile() string {
	return filepath.Join(w.LogDir, "build.log")
}

// Layout resolves workspaces from the configured roots.
type Layout struct {
	paths config.PathsConfig
}

// NewLayout returns a Layout rooted at paths.
func NewLayout(paths config.PathsConfig) *Layout {
	return &Layout{paths: paths}
}

// For returns the workspace of a service. It does not touch the filesystem.
func (l *Layout) For(tenantID, serviceID string) Workspace {
	return Workspace{
		SourceDir:   filepath.Join(l.paths.BuildRoot, tenantID, "source", serviceID),
		CacheDir:    filepath.Join(l.paths.BuildRoot, tenantID, "cache", serviceID),
		ArtifactDir: filepath.Join(l.paths.SlugRoot, tenantID, "slug", serviceID),
		LogDir:      filepath.Join(l.paths.LogRoot, tenantID, serviceID),
	}
}

// Prepare wipes SourceDir and ensures every directory exists.
func (w Workspace) Prepare() error {
	if err := w.ResetSource(); err != nil {
		return err
	}
	for _, dir := range []string{w.CacheDir, w.ArtifactDir, w.LogDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}
	return nil
}

// ResetSource removes and recreates SourceDir.
func (w Workspace) ResetSource() error {
	if err := os.RemoveAll(w.SourceDir); err != nil {
		return fmt.Errorf("failed to wipe source directory: %w", err)
	}
	if err := os.MkdirAll(w.SourceDir, 0o750); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}
	slog.Debug("Reset source directory", logfields.Path(w.SourceDir))
	return nil
}

// ClearCache empties CacheDir, keeping the directory itself.
func (w Workspace) ClearCache() error {
	if err := os.RemoveAll(w.CacheDir); err != nil {
		return fmt.Errorf("failed to clear cache directory: %w", err)
	}
	return os.MkdirAll(w.CacheDir, 0o750)
}

// Scratch is an ephemeral timestamped directory removed by Cleanup.
type Scratch struct {
	path string
}

// NewScratch creates a "buildworker-<timestamp>-*" directory under baseDir (os.TempDir when empty).
func NewScratch(baseDir string) (*Scratch, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create scratch base: %w", err)
	}
	dir, err := os.MkdirTemp(baseDir, "buildworker-"+time.Now().Format("20060102-150405")+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	slog.Debug("Created scratch directory", logfields.Path(dir))
	return &Scratch{path: dir}, nil
}

// Path returns the scratch directory.
func (s *Scratch) Path() string { return s.path }

// Join returns a path inside the scratch directory.
func (s *Scratch) Join(elem ...string) string {
	return filepath.Join(append([]string{s.path}, elem...)...)
}

// Cleanup removes the scratch directory. It is safe to call more than once.
func (s *Scratch) Cleanup() error {
	if s.path == "" {
		return nil
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("failed to cleanup scratch directory: %w", err)
	}
	s.path = ""
	return nil
}
