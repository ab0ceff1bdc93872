package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"podforge/internal/config"
)

// ObjectInfo is the subset of object metadata the engine needs.
type ObjectInfo struct {
	Size int64
	ETag string
}

// ObjectStore is the remote storage contract. Implementations return an error
// wrapping ErrObjectNotFound when the bucket or key is absent.
type ObjectStore interface {
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key, dest string) error
	Put(ctx context.Context, bucket, key, src, contentType string) (ObjectInfo, error)
	Remove(ctx context.Context, bucket, key string) error
}

// MinioStore implements ObjectStore against S3-compatible endpoints.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore builds a client from storage configuration. It does not
// contact the endpoint.
func NewMinioStore(cfg config.Storage) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("storage endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// Stat returns object metadata.
func (s *MinioStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateMinioError(err)
	}
	return ObjectInfo{Size: info.Size, ETag: info.ETag}, nil
}

// Get downloads an object to dest.
func (s *MinioStore) Get(ctx context.Context, bucket, key, dest string) error {
	if err := s.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return translateMinioError(err)
	}
	return nil
}

// Put uploads src as bucket/key.
func (s *MinioStore) Put(ctx context.Context, bucket, key, src, contentType string) (ObjectInfo, error) {
	info, err := s.client.FPutObject(ctx, bucket, key, src, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, translateMinioError(err)
	}
	return ObjectInfo{Size: info.Size, ETag: info.ETag}, nil
}

// Remove deletes bucket/key. Removing an absent key is not an error on S3.
func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateMinioError(err)
	}
	return nil
}

// Ping checks that the artifact bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return translateMinioError(err)
	}
	if !exists {
		return fmt.Errorf("bucket %q: %w", bucket, ErrObjectNotFound)
	}
	return nil
}

func translateMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}
