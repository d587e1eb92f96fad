package session

import (
	"context"
	"sync"
	"time"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/pkg/mylogger"
	"go.uber.org/zap"
)

type MemoryStore struct {
	mu     sync.Mutex
	items  map[int64]domain.Conversation
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		items:  make(map[int64]domain.Conversation),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.items[userID]
	if !ok {
		return nil, ErrNoConversation
	}

	if s.expired(conv) {
		delete(s.items, userID)
		return nil, ErrNoConversation
	}

	return &conv, nil
}

func (s *MemoryStore) Save(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conv
	stored.UpdatedAt = s.now()
	s.items[conv.UserID] = stored

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, userID)
	return nil
}

// Run evicts abandoned conversations until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.evictExpired(); n > 0 {
				mylogger.Debug(
					ctx,
					s.logger,
					"Evicted abandoned conversations",
					zap.Int("count", n),
				)
			}
		}
	}
}

func (s *MemoryStore) evictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, conv := range s.items {
		if s.expired(conv) {
			delete(s.items, userID)
			evicted++
		}
	}

	return evicted
}

func (s *MemoryStore) expired(conv domain.Conversation) bool {
	return s.ttl > 0 && s.now().Sub(conv.UpdatedAt) > s.ttl
}
