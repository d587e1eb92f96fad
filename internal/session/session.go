package session

import (
	"context"
	"errors"

	"github.com/sakashimaa/paybot/internal/domain"
)

var ErrNoConversation = errors.New("no active conversation")

// Store keeps at most one in-flight conversation per user.
type Store interface {
	Get(ctx context.Context, userID int64) (*domain.Conversation, error)
	Save(ctx context.Context, conv *domain.Conversation) error
	Delete(ctx context.Context, userID int64) error
}
