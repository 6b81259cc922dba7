//go:generate go run go.uber.org/mock/mockgen -source=repositories.go -destination=../mocks/mock_repositories.go -package=mocks
package services

import (
	"chat-relay/storage"
	"context"
)

// MessageRepository is satisfied by storage.MessageStore.
type MessageRepository interface {
	Store(ctx context.Context, msg storage.Message) error
	List(ctx context.Context, kind, target, cursor string, limit int) ([]storage.Message, string, error)
}

// ConversationRepository is satisfied by storage.ConversationStore.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, a, b string) (storage.Conversation, bool, error)
	Get(ctx context.Context, id string) (storage.Conversation, error)
}

var (
	_ MessageRepository      = (*storage.MessageStore)(nil)
	_ ConversationRepository = (*storage.ConversationStore)(nil)
)
