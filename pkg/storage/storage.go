package storage

import (
	"context"
	"io"
)

type PutInput struct {
	Filename    string
	ContentType string
	Size        int64
}

// PutResult.Location is a filesystem path for the local driver and an s3:// URI for S3.
type PutResult struct {
	Key      string
	Location string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}
