package slugstore

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// FSStore is a tier backed by a mounted directory.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Name() string { return "fs:" + s.root }

func (s *FSStore) path(remote string) string {
	return filepath.Join(s.root, filepath.FromSlash(remote))
}

func (s *FSStore) EnsureDir(_ context.Context, dir string) error {
	if err := os.MkdirAll(s.path(dir), 0o755); err != nil {
		return errors.StorageError("failed to create tier directory").
			WithCause(err).
			WithContext("dir", s.path(dir)).
			Build()
	}
	return nil
}

func (s *FSStore) Upload(ctx context.Context, localPath, remotePath string) error {
	dst := s.path(remotePath)
	if err := s.EnsureDir(ctx, filepath.ToSlash(filepath.Dir(remotePath))); err != nil {
		return err
	}
	if err := CopyFile(localPath, dst); err != nil {
		return errors.StorageError("failed to upload slug object").
			WithCause(err).
			WithContext("path", dst).
			Build()
	}
	return nil
}

func (s *FSStore) Download(_ context.Context, remotePath, localPath string) error {
	src := s.path(remotePath)
	if _, err := os.Stat(src); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if err := CopyFile(src, localPath); err != nil {
		return errors.StorageError("failed to download slug object").
			WithCause(err).
			WithContext("path", src).
			Build()
	}
	return nil
}

func (s *FSStore) Exists(_ context.Context, remotePath string) (bool, error) {
	_, err := os.Stat(s.path(remotePath))
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FSStore) Remove(_ context.Context, remotePath string) error {
	err := os.Remove(s.path(remotePath))
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// CopyFile copies src to dst through a temp file in dst's directory, creating parents as needed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
