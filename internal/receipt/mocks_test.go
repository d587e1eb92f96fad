package receipt

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sakashimaa/paybot/pkg/storage"
)

type failingStorage struct {
	mu      sync.Mutex
	calls   int
	deleted []string
}

func (s *failingStorage) Put(ctx context.Context, r io.Reader, in storage.PutInput) (storage.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return storage.PutResult{}, errors.New("disk full")
}

func (s *failingStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return errors.New("access denied")
}
