// Package bootstrap connects the stores a running process needs.
package bootstrap

import (
	"context"
	"fmt"

	"sphere/internal/cache"
	"sphere/internal/config"
	"sphere/internal/database"
	"sphere/internal/middleware"
	"sphere/internal/observability"
	"sphere/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Runtime is everything InitRuntime connected. Redis may be nil.
type Runtime struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Blobs         storage.BlobStore
	ShutdownTrace func(context.Context) error
}

// InitRuntime sets up logging and tracing, then connects the database,
// Redis and the avatar store. An unreachable Redis is not fatal.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	middleware.SetupLogger(cfg.Env)

	shutdownTrace, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "sphere-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Exporter:       cfg.OTelExporter,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SamplerRatio:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		_ = shutdownTrace(ctx)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Leaves the package client nil when Redis is unreachable.
	rdb := cache.InitRedis(cfg.RedisURL)

	blobs, err := storage.New(ctx, cfg)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = shutdownTrace(ctx)
		return nil, fmt.Errorf("blob storage init failed: %w", err)
	}

	return &Runtime{DB: db, Redis: rdb, Blobs: blobs, ShutdownTrace: shutdownTrace}, nil
}
