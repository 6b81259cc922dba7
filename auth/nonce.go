package auth

import (
	"chat-relay/cache"
	"chat-relay/errors"
	"context"
	"fmt"
	"time"
)

const noncePrefix = "nonce:"

// MinNonceTTL is the shortest retention that outlives every timestamp a
// window accepts: a request stamped window ahead of the clock stays fresh
// until window after it, so its nonce must survive 2*window.
func MinNonceTTL(window time.Duration) time.Duration {
	return 2*window + time.Second
}

// NonceLedger records consumed nonces for the length of their TTL. The cache
// behind it must never evict a live entry (badger, redis or
// cache.ExpiryStore), otherwise a flood of junk nonces reopens replays.
type NonceLedger struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewNonceLedger keeps nonces for ttl; NewAuthenticator raises it to
// MinNonceTTL of its window when shorter.
func NewNonceLedger(c *cache.Cache, ttl time.Duration) *NonceLedger {
	return &NonceLedger{cache: c, ttl: ttl}
}

func (l *NonceLedger) TTL() time.Duration { return l.ttl }

func (l *NonceLedger) cover(window time.Duration) bool {
	if minTTL := MinNonceTTL(window); l.ttl < minTTL {
		l.ttl = minTTL
		return true
	}
	return false
}

// Consume claims the nonce with one atomic set-if-absent. Exactly one of any
// number of concurrent callers presenting the same value succeeds; the others
// get errors.ErrDuplicateNonce.
func (l *NonceLedger) Consume(ctx context.Context, nonce string) error {
	stored, err := l.cache.SetRawIfAbsent(ctx, noncePrefix+nonce, []byte{1}, l.ttl)
	if err != nil {
		return fmt.Errorf("nonce ledger unavailable: %w", err)
	}
	if !stored {
		return errors.ErrDuplicateNonce
	}
	return nil
}
