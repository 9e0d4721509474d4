// Package storage persists uploaded avatars as opaque blobs.
package storage

import (
	"context"
	"fmt"
	"io"

	"sphere/internal/config"
)

// BlobStore stores objects under a key and returns the URL clients use to fetch them.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return NewLocalStore(cfg.StorageLocalDir, "/uploads")
	case "minio":
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
