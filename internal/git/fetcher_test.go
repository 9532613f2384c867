package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
	ferrors "git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// newOriginRepo creates a repository with one commit and returns its path.
func newOriginRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine\n"), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Dockerfile")
	require.NoError(t, err)
	_, err = wt.Commit("Add Dockerfile\n\nlonger body", &git.CommitOptions{
		Author: &object.Signature{Name: "Jane Dev", Email: "jane@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return dir
}

func testFetcher() *Fetcher {
	return NewFetcher(config.CloneConfig{Timeout: "30s", Attempts: 2}, nil)
}

func TestCloneAndCommitInfo(t *testing.T) {
	origin := newOriginRepo(t)
	dest := filepath.Join(t.TempDir(), "src")

	f := testFetcher()
	require.NoError(t, f.Clone(context.Background(), CloneRequest{URL: origin, Dest: dest}))
	assert.FileExists(t, filepath.Join(dest, "Dockerfile"))

	info := f.CommitInfo(dest)
	assert.Len(t, info.Hash, 40)
	assert.Len(t, info.ShortHash(), 7)
	assert.Equal(t, "Jane Dev", info.Author)
	assert.Equal(t, "Add Dockerfile", info.Subject)
	assert.Equal(t, int64(1700000000), info.Timestamp.Unix())
}

func TestCloneRetriesAfterReset(t *testing.T) {
	origin := newOriginRepo(t)
	dest := filepath.Join(t.TempDir(), "src")
	// A leftover repository makes the first attempt fail.
	_, err := git.PlainInit(dest, false)
	require.NoError(t, err)

	resets := 0
	var attempts []error
	f := testFetcher().WithObserver(func(_ int, err error) { attempts = append(attempts, err) })
	err = f.Clone(context.Background(), CloneRequest{
		URL:  origin,
		Dest: dest,
		Reset: func() error {
			resets++
			if err := os.RemoveAll(dest); err != nil {
				return err
			}
			return os.MkdirAll(dest, 0o750)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resets)
	require.Len(t, attempts, 2)
	assert.Error(t, attempts[0])
	assert.NoError(t, attempts[1])
}

func TestCloneExhaustsAttempts(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "src")
	calls, resets := 0, 0
	f := testFetcher().WithObserver(func(int, error) { calls++ })
	err := f.Clone(context.Background(), CloneRequest{
		URL:  filepath.Join(t.TempDir(), "missing-repo"),
		Dest: dest,
		Reset: func() error {
			resets++
			return os.RemoveAll(dest)
		},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, resets)

	var ce *ferrors.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Context()["attempts"])
}

func TestCloneRetriesNotFoundErrors(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "src")
	var seen []error
	f := testFetcher().WithObserver(func(_ int, err error) { seen = append(seen, err) })
	err := f.Clone(context.Background(), CloneRequest{
		URL:   filepath.Join(t.TempDir(), "gone"),
		Dest:  dest,
		Reset: func() error { return os.RemoveAll(dest) },
	})
	require.Error(t, err)
	require.Len(t, seen, 2)
	for _, e := range seen {
		assert.Error(t, e)
	}
}

func TestCloneStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	f := testFetcher().WithObserver(func(int, error) {
		calls++
		cancel()
	})
	err := f.Clone(ctx, CloneRequest{
		URL:  filepath.Join(t.TempDir(), "missing-repo"),
		Dest: filepath.Join(t.TempDir(), "src"),
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCommitInfoIsBestEffort(t *testing.T) {
	info := testFetcher().CommitInfo(t.TempDir())
	assert.Equal(t, UnknownCommit, info)
}

func TestClassifyCloneError(t *testing.T) {
	cases := map[string]any{
		"authentication required":    &AuthError{},
		"repository not found":       &NotFoundError{},
		"unsupported scheme \"ftp\"": &UnsupportedProtocolError{},
		"429 too many requests":      &RateLimitError{},
		"dial tcp: i/o timeout":      &NetworkTimeoutError{},
	}
	for msg, want := range cases {
		err := classifyCloneError("https://example.com/a/b.git", errString(msg))
		assert.IsType(t, want, err, msg)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestAuthFor(t *testing.T) {
	assert.Nil(t, authFor("git@github.com:a/b.git", "", "tok"))
	assert.Nil(t, authFor("https://github.com/a/b.git", "", ""))

	a := authFor("https://user:pw@github.com/a/b.git", "", "tok")
	require.NotNil(t, a)
	assert.Contains(t, a.String(), "user")

	b := authFor("https://github.com/a/b.git", "", "tok")
	require.NotNil(t, b)
	assert.Contains(t, b.String(), "oauth2")
}
