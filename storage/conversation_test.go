package storage

import (
	"chat-relay/errors"
	"chat-relay/internal/testutil"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the same conversation for both member orders", func(t *testing.T) {
		req := require.New(t)
		store := NewConversationStore(testutil.OpenBadger(t), slog.New(slog.DiscardHandler))

		first, created, err := store.GetOrCreate(ctx, "alice", "bob")
		req.NoError(err)
		req.True(created)

		again, created, err := store.GetOrCreate(ctx, "bob", "alice")
		req.NoError(err)
		req.False(created)
		req.Equal(first.ID, again.ID)
		req.True(again.HasMember("alice"))
		req.True(again.HasMember("bob"))
		req.False(again.HasMember("carol"))

		fetched, err := store.Get(ctx, first.ID)
		req.NoError(err)
		req.Equal([]string{"alice", "bob"}, fetched.MemberIDs)
	})

	t.Run("should converge concurrent creators on one conversation", func(t *testing.T) {
		req := require.New(t)
		store := NewConversationStore(testutil.OpenBadger(t), slog.New(slog.DiscardHandler))

		ids := make(chan string, 8)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, b := "alice", "bob"
				if i%2 == 1 {
					a, b = b, a
				}
				conv, _, err := store.GetOrCreate(ctx, a, b)
				if err == nil {
					ids <- conv.ID
				}
			}()
		}
		wg.Wait()
		close(ids)

		unique := map[string]struct{}{}
		for id := range ids {
			unique[id] = struct{}{}
		}
		req.Len(unique, 1)
	})

	t.Run("should reject self conversations and unknown ids", func(t *testing.T) {
		req := require.New(t)
		store := NewConversationStore(testutil.OpenBadger(t), slog.New(slog.DiscardHandler))

		_, _, err := store.GetOrCreate(ctx, "alice", "alice")
		req.ErrorIs(err, errors.ErrValidation)

		_, err = store.Get(ctx, "missing")
		req.ErrorIs(err, errors.ErrConvNotFound)
		req.ErrorIs(err, errors.ErrNotFound)
	})
}
