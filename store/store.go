// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"errors"

	"github.com/modalchat/server/domain"
)

// ErrNotFound is returned when a referenced conversation does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for conversation persistence. Implementations
// are opened at startup and closed at shutdown; handlers receive the
// interface, never a concrete backend.
type Store interface {
	// Conversation operations
	CreateConversation(ctx context.Context, title string) (*domain.Conversation, error)
	GetConversations(ctx context.Context) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Message operations
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Lifecycle
	Close() error
}
