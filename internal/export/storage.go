package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores an export and hands back a time-limited download URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, time.Time, error)
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

// ObjectStore uploads exports to an S3-compatible bucket via MinIO's client.
type ObjectStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

func (o *ObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, time.Time, error) {
	_, err := o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("upload %s: %w", key, err)
	}
	expiresAt := time.Now().Add(o.ttl)
	presigned, err := o.client.PresignedGetObject(ctx, o.bucket, key, o.ttl, url.Values{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return presigned.String(), expiresAt, nil
}
