package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MediaStore persists listing images and returns their public URL
type MediaStore interface {
	Upload(ctx context.Context, originalName, contentType string, data []byte) (string, error)
}

// MinioMediaStore stores media in an S3-compatible bucket
type MinioMediaStore struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

// NewMinioMediaStore connects to MinIO and makes sure the bucket exists
func NewMinioMediaStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log *zap.Logger) (*MinioMediaStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		log.Info("created media bucket", zap.String("bucket", bucket))
	}

	return &MinioMediaStore{client: client, bucket: bucket, log: log}, nil
}

func (s *MinioMediaStore) Upload(ctx context.Context, originalName, contentType string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("listings/%s%s", newID(), strings.ToLower(filepath.Ext(originalName)))

	info, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-filename": filepath.Base(originalName)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}

	s.log.Debug("uploaded media", zap.String("key", info.Key), zap.Int64("size", info.Size))
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucket, objectKey), nil
}
