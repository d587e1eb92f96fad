package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/paybot/internal/domain"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("conversation:%d", userID)
}

func (s *redisStore) Get(ctx context.Context, userID int64) (*domain.Conversation, error) {
	val, err := s.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoConversation
		}
		return nil, fmt.Errorf("error loading conversation: %w", err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return nil, fmt.Errorf("error decoding conversation: %w", err)
	}

	return &conv, nil
}

func (s *redisStore) Save(ctx context.Context, conv *domain.Conversation) error {
	stored := *conv
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("error encoding conversation: %w", err)
	}

	if err := s.client.Set(ctx, key(conv.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("error saving conversation: %w", err)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}

	return nil
}
