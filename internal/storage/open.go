package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/easyshare/service/internal/config"
)

// Open builds the Store selected by cfg.StorageDriver. The returned close
// function releases any client resources and is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageDriver {
	case "minio":
		s, err := NewMinioStore(ctx, cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket, cfg.StorageUseSSL, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "s3":
		s, err := NewS3Store(ctx, cfg.StorageRegion, cfg.S3Endpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "gcs":
		s, err := NewGCSStore(ctx, cfg.StorageBucket)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "azure":
		s, err := NewAzureStore(cfg.AzureConnectionString, cfg.StorageBucket)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o755); err != nil {
			return nil, noop, fmt.Errorf("create bolt dir: %w", err)
		}
		s, err := OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
