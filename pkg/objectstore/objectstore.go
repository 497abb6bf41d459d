package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"upkeep/pkg/config"
)

// Store persists sign-off attachments and produces short-lived retrieval URLs.
type Store interface {
	Put(ctx context.Context, objectKey, contentType string, r io.Reader, size int64) error
	PresignedGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

var Module = fx.Module("objectstore",
	fx.Provide(
		newClient,
		NewBucketStore,
		func(s *BucketStore) Store { return s },
	),
)

func newClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}

	exists, err := client.BucketExists(context.Background(), c.Minio.BucketName)
	if err != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucket_exists", exists))

	return client
}

// BucketStore is a Store bound to the configured attachments bucket.
type BucketStore struct {
	client *minio.Client
	bucket string
}

func NewBucketStore(client *minio.Client, cfg *config.Config) *BucketStore {
	return &BucketStore{client: client, bucket: cfg.Minio.BucketName}
}

func (s *BucketStore) Put(ctx context.Context, objectKey, contentType string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (s *BucketStore) PresignedGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", objectKey, err)
	}
	return u.String(), nil
}
