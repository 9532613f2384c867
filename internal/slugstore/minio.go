package slugstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// objectAPI is the subset of *minio.Client the tier uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioStore is an S3-compatible tier. Directories are implicit; EnsureDir only makes sure the bucket exists.
type MinioStore struct {
	client objectAPI
	bucket string
	prefix string
	region string

	bucketOnce sync.Once
	bucketErr  error
}

// NewMinioStore connects to the endpoint in cfg.
func NewMinioStore(cfg config.SlugStoreConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return newMinioStore(client, cfg.Bucket, cfg.Prefix), nil
}

func newMinioStore(client objectAPI, bucket, prefix string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: "us-east-1",
	}
}

func (s *MinioStore) Name() string { return "minio:" + s.bucket }

func (s *MinioStore) key(remote string) string {
	remote = strings.TrimLeft(remote, "/")
	if s.prefix == "" {
		return remote
	}
	return path.Join(s.prefix, remote)
}

func (s *MinioStore) EnsureDir(ctx context.Context, _ string) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = err
			return
		}
		if !exists {
			s.bucketErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		}
	})
	if s.bucketErr != nil {
		return errors.StorageError("failed to ensure slug bucket").
			WithCause(s.bucketErr).
			WithContext("bucket", s.bucket).
			Build()
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := s.EnsureDir(ctx, path.Dir(remotePath)); err != nil {
		return err
	}
	contentType := "application/gzip"
	if strings.HasSuffix(remotePath, SidecarSuffix) {
		contentType = "text/plain"
	}
	if _, err := s.client.FPutObject(ctx, s.bucket, s.key(remotePath), localPath, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return errors.StorageError("failed to upload slug object").
			WithCause(err).
			WithContext("bucket", s.bucket).
			WithContext("key", s.key(remotePath)).
			Build()
	}
	return nil
}

func (s *MinioStore) Download(ctx context.Context, remotePath, localPath string) error {
	err := s.client.FGetObject(ctx, s.bucket, s.key(remotePath), localPath, minio.GetObjectOptions{})
	if err == nil {
		return nil
	}
	if isNoSuchKey(err) {
		return ErrNotFound
	}
	return errors.StorageError("failed to download slug object").
		WithCause(err).
		WithContext("bucket", s.bucket).
		WithContext("key", s.key(remotePath)).
		Build()
}

func (s *MinioStore) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(remotePath), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, err
}

func (s *MinioStore) Remove(ctx context.Context, remotePath string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.key(remotePath), minio.RemoveObjectOptions{})
}

func isNoSuchKey(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	default:
		return false
	}
}
