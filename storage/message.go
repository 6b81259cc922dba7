package storage

import (
	"chat-relay/envelope"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const defaultPageSize = 50

type Message struct {
	ID         uuid.UUID `json:"id"`
	TargetKind string    `json:"targetKind"`
	TargetID   string    `json:"targetId"`
	AuthorID   string    `json:"authorId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessageStore persists messages in BadgerDB. Content is sealed with the
// envelope codec before it is written and opened again on read: plaintext
// never reaches the disk.
type MessageStore struct {
	db    *badger.DB
	codec *envelope.Codec
	log   *slog.Logger
	limit int
}

func NewMessageStore(db *badger.DB, codec *envelope.Codec, log *slog.Logger, limit int) *MessageStore {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return &MessageStore{db: db, codec: codec, log: log, limit: limit}
}

// cursorPattern matches the key suffix List hands out as a cursor.
var cursorPattern = regexp.MustCompile(`^[0-9]{19}:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// messageKey is "msg:{kind}:{len(target)}:{target}:{unix_nano_padded}:{uuid}".
// The length prefix keeps a target that contains ':' from sharing a prefix
// with another one ("room" vs "room:1"). The 19-digit padding keeps
// lexicographic order chronological and the uuid separates messages created
// in the same nanosecond.
func messageKey(m Message) []byte {
	return fmt.Appendf(nil, "%s%019d:%s", messagePrefix(m.TargetKind, m.TargetID), m.CreatedAt.UnixNano(), m.ID)
}

func messagePrefix(kind, target string) string {
	return fmt.Sprintf("msg:%s:%d:%s:", kind, len(target), target)
}

func (s *MessageStore) Store(_ context.Context, m Message) error {
	sealed, err := s.codec.EncryptString(m.Content)
	if err != nil {
		return err
	}
	value, err := encodeRecord(map[string]any{
		"id":         m.ID.String(),
		"targetKind": m.TargetKind,
		"targetId":   m.TargetID,
		"authorId":   m.AuthorID,
		"content":    sealed,
		"createdAt":  formatTime(m.CreatedAt),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(m), value)
	})
}

// List returns up to limit messages, newest first, and the cursor to pass
// back for the next page. An empty cursor starts from the newest message.
func (s *MessageStore) List(_ context.Context, kind, target, cursor string, limit int) ([]Message, string, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	if cursor != "" && !cursorPattern.MatchString(cursor) {
		return nil, "", fmt.Errorf("%w: malformed cursor", errors.ErrValidation)
	}
	prefix := messagePrefix(kind, target)

	var values [][]byte
	var lastKey string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var seek []byte
		if cursor == "" {
			// Past the newest possible timestamp, then walk backwards
			seek = []byte(prefix + "9999999999999999999")
		} else {
			seek = []byte(prefix + cursor)
		}
		it.Seek(seek)
		if cursor != "" && it.ValidForPrefix([]byte(prefix)) && string(it.Item().Key()) == prefix+cursor {
			it.Next()
		}

		for ; it.ValidForPrefix([]byte(prefix)) && len(values) < limit; it.Next() {
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	messages := make([]Message, 0, len(values))
	for _, v := range values {
		m, err := s.open(v)
		if err != nil {
			return nil, "", err
		}
		messages = append(messages, m)
	}
	if len(messages) < limit {
		lastKey = ""
	}
	return messages, lastKey, nil
}

func (s *MessageStore) open(value []byte) (Message, error) {
	r, err := decodeRecord(value)
	if err != nil {
		return Message{}, err
	}
	id, err := uuid.Parse(r.str("id"))
	if err != nil {
		return Message{}, fmt.Errorf("message id: %w", err)
	}
	content, err := s.codec.DecryptString(r.str("content"))
	if err != nil {
		s.log.Error("Stored message cannot be decrypted", "message_id", id, "error", err)
		return Message{}, err
	}
	return Message{
		ID:         id,
		TargetKind: r.str("targetKind"),
		TargetID:   r.str("targetId"),
		AuthorID:   r.str("authorId"),
		Content:    content,
		CreatedAt:  r.timestamp("createdAt"),
	}, nil
}
