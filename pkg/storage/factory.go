package storage

import (
	"context"
	"fmt"

	"github.com/sakashimaa/paybot/pkg/config"
)

func New(ctx context.Context, cfg config.Storage) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalDir), nil
	case "s3":
		s3, err := NewS3(ctx, S3Config{
			Region: cfg.S3.Region,
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating s3 storage: %w", err)
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
