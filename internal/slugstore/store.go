// Package slugstore moves slug tarballs and their md5 sidecars between the
// local publish root and the remote tiers.
package slugstore

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 is the sidecar format the tiers agree on
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// SidecarSuffix is appended to a slug path to name its digest file.
const SidecarSuffix = ".md5"

// ErrNotFound is returned by Download when the remote object does not exist.
var ErrNotFound = stderrors.New("slug object not found")

// Store is one remote slug tier. Remote paths are slash separated and relative to the tier root.
type Store interface {
	EnsureDir(ctx context.Context, dir string) error
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	Exists(ctx context.Context, remotePath string) (bool, error)
	Remove(ctx context.Context, remotePath string) error
	Name() string
}

// Digest returns the hex md5 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() //nolint:gosec // see import
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteSidecar writes digest to <path>.md5 and returns the sidecar path.
func WriteSidecar(path, digest string) (string, error) {
	sidecar := path + SidecarSuffix
	if err := os.WriteFile(sidecar, []byte(digest), 0o644); err != nil {
		return "", errors.FileSystemError("failed to write md5 sidecar").
			WithCause(err).
			WithContext("path", sidecar).
			Build()
	}
	return sidecar, nil
}

// ReadSidecar returns the first line of a sidecar file.
func ReadSidecar(sidecar string) (string, error) {
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

// RemoteDigest downloads the remote sidecar of remotePath into a temp file and reads it.
// It returns "" with a nil error when the tier has no sidecar.
func RemoteDigest(ctx context.Context, s Store, remotePath string) (string, error) {
	tmp, err := os.CreateTemp("", "slug-md5-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(name) }()

	if err := s.Download(ctx, remotePath+SidecarSuffix, name); err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return ReadSidecar(name)
}
