package storage

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxTxnRetries = 5

type Conversation struct {
	ID        string    `json:"id"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c Conversation) HasMember(id string) bool {
	return slices.Contains(c.MemberIDs, id)
}

// ConversationStore keeps one conversation per unordered pair of members.
type ConversationStore struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewConversationStore(db *badger.DB, log *slog.Logger) *ConversationStore {
	return &ConversationStore{db: db, log: log, now: time.Now}
}

func conversationKey(id string) []byte {
	return []byte("conv:" + id)
}

// pairKey orders the members so (a, b) and (b, a) share one index entry.
func pairKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return fmt.Appendf(nil, "conv-pair:%s:%s", a, b)
}

// GetOrCreate returns the conversation between a and b, creating it when
// absent. Concurrent creators of the same pair converge on one conversation.
func (s *ConversationStore) GetOrCreate(_ context.Context, a, b string) (Conversation, bool, error) {
	if a == b {
		return Conversation{}, false, fmt.Errorf("%w: a conversation needs two distinct members", errors.ErrValidation)
	}
	for range maxTxnRetries {
		var conv Conversation
		created := false
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(a, b))
			switch {
			case err == nil:
				id, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				conv, err = s.get(txn, string(id))
				return err
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			conv = Conversation{ID: uuid.NewString(), MemberIDs: []string{a, b}, CreatedAt: s.now().UTC()}
			value, err := encodeRecord(map[string]any{
				"id":        conv.ID,
				"memberIds": []any{a, b},
				"createdAt": formatTime(conv.CreatedAt),
			})
			if err != nil {
				return err
			}
			if err := txn.Set(conversationKey(conv.ID), value); err != nil {
				return err
			}
			created = true
			return txn.Set(pairKey(a, b), []byte(conv.ID))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return conv, created, err
	}
	return Conversation{}, false, fmt.Errorf("conversation between %s and %s: %w", a, b, badger.ErrConflict)
}

func (s *ConversationStore) Get(_ context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = s.get(txn, id)
		return err
	})
	return conv, err
}

func (s *ConversationStore) get(txn *badger.Txn, id string) (Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Conversation{}, fmt.Errorf("%w %s", errors.ErrConvNotFound, id)
	}
	if err != nil {
		return Conversation{}, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return Conversation{}, err
	}
	r, err := decodeRecord(value)
	if err != nil {
		return Conversation{}, err
	}
	return Conversation{
		ID:        r.str("id"),
		MemberIDs: r.list("memberIds"),
		CreatedAt: r.timestamp("createdAt"),
	}, nil
}
