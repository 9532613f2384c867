package slugstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDigestAndSidecar(t *testing.T) {
	dir := t.TempDir()
	slug := filepath.Join(dir, "v1.tgz")
	writeFile(t, slug, "hello")

	digest, err := Digest(slug)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", digest)

	sidecar, err := WriteSidecar(slug, digest)
	require.NoError(t, err)
	assert.Equal(t, slug+".md5", sidecar)

	got, err := ReadSidecar(sidecar)
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "v1.tgz")
	writeFile(t, local, "payload")

	store := NewFSStore(t.TempDir())
	exists, err := store.Exists(ctx, "svc/v1.tgz")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, local, "svc/v1.tgz"))
	exists, err = store.Exists(ctx, "svc/v1.tgz")
	require.NoError(t, err)
	assert.True(t, exists)

	out := filepath.Join(t.TempDir(), "nested", "copy.tgz")
	require.NoError(t, store.Download(ctx, "svc/v1.tgz", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Remove(ctx, "svc/v1.tgz"))
	require.NoError(t, store.Remove(ctx, "svc/v1.tgz"))
	assert.ErrorIs(t, store.Download(ctx, "svc/v1.tgz", out), ErrNotFound)
}

func TestRemoteDigest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewFSStore(root)

	digest, err := RemoteDigest(ctx, store, "svc/v1.tgz")
	require.NoError(t, err)
	assert.Empty(t, digest)

	writeFile(t, filepath.Join(root, "svc", "v1.tgz.md5"), "abc123\n")
	digest, err = RemoteDigest(ctx, store, "svc/v1.tgz")
	require.NoError(t, err)
	assert.Equal(t, "abc123", digest)
}

type fakeObjects struct {
	buckets map[string]bool
	objects map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) FPutObject(_ context.Context, bucket, object, filePath string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = string(data)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(data))}, nil
}

func (f *fakeObjects) FGetObject(_ context.Context, bucket, object, filePath string, _ minio.GetObjectOptions) error {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return os.WriteFile(filePath, []byte(data), 0o644)
}

func (f *fakeObjects) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: object, Size: int64(len(data))}, nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	delete(f.objects, bucket+"/"+object)
	return nil
}

func TestMinioStorePrefixesKeysAndCreatesBucket(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	store := newMinioStore(objects, "slugs", "/market/")

	local := filepath.Join(t.TempDir(), "v1.tgz")
	writeFile(t, local, "tarball")

	require.NoError(t, store.Upload(ctx, local, "svc/v1.tgz"))
	assert.True(t, objects.buckets["slugs"])
	assert.Equal(t, "tarball", objects.objects["slugs/market/svc/v1.tgz"])

	exists, err := store.Exists(ctx, "svc/v1.tgz")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "svc/v2.tgz")
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.Download(ctx, "svc/v2.tgz", filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Remove(ctx, "svc/v1.tgz"))
	assert.Empty(t, objects.objects)
}

func TestNewDisabledTier(t *testing.T) {
	s, err := New(config.SlugStoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(config.SlugStoreConfig{Enabled: true, Type: config.SlugStoreFS, Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)
}
