package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Local struct {
	BaseDir string
}

func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

func (l *Local) Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}

	if err := os.MkdirAll(l.BaseDir, 0o755); err != nil {
		return PutResult{}, err
	}

	key := safeName(in.Filename)
	dstPath := filepath.Join(l.BaseDir, key)

	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return PutResult{}, err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return PutResult{}, err
	}

	if err := f.Close(); err != nil {
		return PutResult{}, err
	}

	return PutResult{Key: key, Location: dstPath}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	return os.Remove(filepath.Join(l.BaseDir, safeName(key)))
}

// safeName keeps only the base name so keys cannot escape BaseDir.
func safeName(filename string) string {
	name := filepath.Base(filepath.Clean("/" + filename))
	return strings.TrimPrefix(name, "/")
}

func (l *Local) String() string { return fmt.Sprintf("local(%s)", l.BaseDir) }
