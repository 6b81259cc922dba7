//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=../mocks/mock_cache.go -package=mocks
package cache

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/proto"
)

// Store is a raw byte key/value backend with per-entry TTL.
// A ttl <= 0 means the entry never expires.
type Store interface {
	// Get returns errors.ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent is a single atomic check-and-set. It reports whether this
	// call stored the value.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Del is a no-op when the key is absent.
	Del(ctx context.Context, key string) error
}

// Cache serializes values with protobuf before handing them to a Store.
// Corrupt entries read back as misses; only backend failures are errors.
type Cache struct {
	store Store
	log   *slog.Logger
}

func New(store Store, log *slog.Logger) *Cache {
	return &Cache{store: store, log: log}
}

func (c *Cache) Set(ctx context.Context, key string, value proto.Message, ttl time.Duration) error {
	b, err := proto.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %q: %w", key, err)
	}
	return c.store.Set(ctx, key, b, ttl)
}

// Get decodes the entry into dst and reports whether it was a hit.
func (c *Cache) Get(ctx context.Context, key string, dst proto.Message) (bool, error) {
	b, found, err := c.GetRaw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := proto.Unmarshal(b, dst); err != nil {
		c.log.Debug("Corrupt cache entry treated as miss", "key", key, "error", err)
		proto.Reset(dst)
		if err := c.store.Del(ctx, key); err != nil {
			c.log.Debug("Failed to evict corrupt cache entry", "key", key, "error", err)
		}
		return false, nil
	}
	return true, nil
}

func (c *Cache) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

func (c *Cache) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, errors.ErrCacheMiss):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) SetRawIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.store.SetIfAbsent(ctx, key, value, ttl)
}

func (c *Cache) Del(ctx context.Context, key string) error {
	return c.store.Del(ctx, key)
}
