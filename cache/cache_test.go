package cache

import (
	"chat-relay/errors"
	"chat-relay/internal/testutil"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore(128)
	require.NoError(t, err)
	res := map[string]Store{
		"memory": mem,
		"expiry": NewExpiryStore(128),
		"badger": NewBadgerStore(testutil.OpenBadger(t), slog.New(slog.DiscardHandler)),
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := NewRedisClient(addr, "", 0)
		t.Cleanup(func() { _ = client.Close() })
		res["redis"] = NewRedisStore(client, "test:"+t.Name()+":")
	}
	return res
}

func TestCache_SetGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name+" should decode what was encoded", func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := New(store, slog.New(slog.DiscardHandler))

			req.NoError(c.Set(ctx, "secret:client-1", wrapperspb.String("s3cr3t"), time.Minute))

			var got wrapperspb.StringValue
			found, err := c.Get(ctx, "secret:client-1", &got)
			req.NoError(err)
			req.True(found)
			req.Equal("s3cr3t", got.GetValue())
		})

		t.Run(name+" should report a miss for absent keys", func(t *testing.T) {
			req := require.New(t)
			c := New(store, slog.New(slog.DiscardHandler))

			var got wrapperspb.StringValue
			found, err := c.Get(context.Background(), "absent", &got)
			req.NoError(err)
			req.False(found)
		})
	}
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := New(store, slog.New(slog.DiscardHandler))

			// 0xff is an invalid protobuf tag.
			req.NoError(c.SetRaw(ctx, "corrupt", []byte{0xff, 0xff, 0xff}, time.Minute))

			var got wrapperspb.StringValue
			found, err := c.Get(ctx, "corrupt", &got)
			req.NoError(err)
			req.False(found)
			req.Empty(got.GetValue())
		})
	}
}

func TestCache_DelIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := New(store, slog.New(slog.DiscardHandler))

			req.NoError(c.SetRaw(ctx, "flag", []byte("1"), time.Minute))
			req.NoError(c.Del(ctx, "flag"))
			req.NoError(c.Del(ctx, "flag"))

			_, found, err := c.GetRaw(ctx, "flag")
			req.NoError(err)
			req.False(found)
		})
	}
}

func TestCache_SetRawIfAbsent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name+" should only store once", func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := New(store, slog.New(slog.DiscardHandler))

			stored, err := c.SetRawIfAbsent(ctx, "nonce:a", []byte("1"), time.Minute)
			req.NoError(err)
			req.True(stored)

			stored, err = c.SetRawIfAbsent(ctx, "nonce:a", []byte("1"), time.Minute)
			req.NoError(err)
			req.False(stored)
		})

		t.Run(name+" should elect exactly one winner under contention", func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			c := New(store, slog.New(slog.DiscardHandler))

			var winners atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					stored, err := c.SetRawIfAbsent(ctx, "nonce:race", []byte("1"), time.Minute)
					if err == nil && stored {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			req.Equal(int32(1), winners.Load())
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewMemoryStore(8)
	req.NoError(err)
	store.WithClock(func() time.Time { return now })

	req.NoError(store.Set(ctx, "k", []byte("v"), 10*time.Second))
	stored, err := store.SetIfAbsent(ctx, "k", []byte("w"), 10*time.Second)
	req.NoError(err)
	req.False(stored)

	// When the TTL elapses
	now = now.Add(10 * time.Second)

	// Then the key is gone and can be claimed again
	_, err = store.Get(ctx, "k")
	req.Error(err)
	stored, err = store.SetIfAbsent(ctx, "k", []byte("w"), 10*time.Second)
	req.NoError(err)
	req.True(stored)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := NewMemoryStore(2)
	req.NoError(err)

	req.NoError(store.Set(ctx, "a", []byte("1"), 0))
	req.NoError(store.Set(ctx, "b", []byte("2"), 0))
	req.NoError(store.Set(ctx, "c", []byte("3"), 0))

	_, err = store.Get(ctx, "a")
	req.Error(err)
	v, err := store.Get(ctx, "c")
	req.NoError(err)
	req.Equal([]byte("3"), v)
}

func TestExpiryStore_NeverEvictsLiveEntries(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewExpiryStore(2).WithClock(func() time.Time { return now })

	for _, key := range []string{"a", "b"} {
		stored, err := store.SetIfAbsent(ctx, key, []byte{1}, time.Minute)
		req.NoError(err)
		req.True(stored)
	}

	// When every slot is live, new keys are refused and old ones survive
	_, err := store.SetIfAbsent(ctx, "c", []byte{1}, time.Minute)
	req.ErrorIs(err, errors.ErrCacheFull)
	req.ErrorIs(store.Set(ctx, "c", []byte{1}, time.Minute), errors.ErrCacheFull)
	stored, err := store.SetIfAbsent(ctx, "a", []byte{1}, time.Minute)
	req.NoError(err)
	req.False(stored)

	// Once they expire, their slots are reclaimed
	now = now.Add(time.Minute)
	stored, err = store.SetIfAbsent(ctx, "c", []byte{1}, time.Minute)
	req.NoError(err)
	req.True(stored)
	req.Equal(1, store.Len())
}
