package auth

import (
	"chat-relay/cache"
	"chat-relay/errors"
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-1"
	testSecret   = "s3cr3t-signing-key"
)

type fixture struct {
	auth  *Authenticator
	cache *cache.Cache
	now   time.Time
	clock time.Time
}

func newFixture(t *testing.T, cfg AuthenticatorConfig) *fixture {
	return newSizedFixture(t, cfg, 1024)
}

// newSizedFixture shares one movable clock between the ledger store and the
// authenticator.
func newSizedFixture(t *testing.T, cfg AuthenticatorConfig, capacity int) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	now := time.Unix(1_700_000_000, 0)
	f := &fixture{now: now, clock: now}
	store := cache.NewExpiryStore(capacity).WithClock(func() time.Time { return f.clock })
	f.cache = cache.New(store, log)

	secrets := NewSecretResolver(log, f.cache, StaticDirectory{testClientID: testSecret}, time.Minute)
	f.auth = NewAuthenticator(log, NewNonceLedger(f.cache, 2*time.Minute), secrets, cfg).
		WithClock(func() time.Time { return f.clock })
	return f
}

func randomNonce(t *testing.T) string {
	t.Helper()
	b := make([]byte, 32)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func unsignedRequest(t *testing.T, ts time.Time) SignedRequest {
	return SignedRequest{
		ClientID:  testClientID,
		Nonce:     randomNonce(t),
		Timestamp: strconv.FormatInt(ts.Unix(), 10),
		RequestID: uuid.NewString(),
		UserAgent: "relay-test/1.0",
		ClientIP:  "10.0.0.1",
		Method:    "POST",
		URL:       "/api/messages",
		Body:      []byte(`{"content":"hi"}`),
	}
}

func sign(t *testing.T, r SignedRequest, algo Algorithm) SignedRequest {
	t.Helper()
	sig, err := Sign(r, testSecret, algo)
	require.NoError(t, err)
	r.Signature = sig
	return r
}

func TestAuthenticator_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("should accept a correctly signed fresh request", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		req.NoError(f.auth.Authenticate(ctx, sign(t, unsignedRequest(t, f.now), HMACSHA256)))
	})

	t.Run("should accept a signature prefixed with 0x", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := sign(t, unsignedRequest(t, f.now), HMACSHA256)
		r.Signature = "0x" + r.Signature
		req.NoError(f.auth.Authenticate(ctx, r))
	})

	t.Run("should verify sha512 signatures when configured", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{Algorithm: HMACSHA512})
		req.NoError(f.auth.Authenticate(ctx, sign(t, unsignedRequest(t, f.now), HMACSHA512)))

		err := f.auth.Authenticate(ctx, sign(t, unsignedRequest(t, f.now), HMACSHA256))
		req.ErrorIs(err, errors.ErrInvalidSignature)
	})

	t.Run("should report missing fields without touching the ledger", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := sign(t, unsignedRequest(t, f.now), HMACSHA256)
		r.ClientID = ""
		r.UserAgent = ""

		err := f.auth.Authenticate(ctx, r)
		req.ErrorIs(err, errors.ErrMissingField)
		req.ErrorIs(err, errors.ErrValidation)
		req.Contains(err.Error(), "ClientID")
		req.Contains(err.Error(), "UserAgent")

		_, found, err := f.cache.GetRaw(ctx, noncePrefix+r.Nonce)
		req.NoError(err)
		req.False(found)
	})

	t.Run("should reject malformed nonces", func(t *testing.T) {
		f := newFixture(t, AuthenticatorConfig{})
		for _, nonce := range []string{"short", randomNonce(t) + "a", randomNonce(t)[:63] + "-"} {
			r := unsignedRequest(t, f.now)
			r.Nonce = nonce
			err := f.auth.Authenticate(ctx, sign(t, r, HMACSHA256))
			require.ErrorIs(t, err, errors.ErrMalformedNonce, nonce)
		}
	})

	t.Run("should reject request ids that are not UUIDv4", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := unsignedRequest(t, f.now)
		r.RequestID = "f47ac10b-58cc-1372-8567-0e02b2c3d479"
		req.ErrorIs(f.auth.Authenticate(ctx, sign(t, r, HMACSHA256)), errors.ErrMalformedID)
	})

	t.Run("should accept timestamps up to the window boundary inclusive", func(t *testing.T) {
		f := newFixture(t, AuthenticatorConfig{Window: 60 * time.Second})
		for _, offset := range []time.Duration{-59 * time.Second, -60 * time.Second, 60 * time.Second} {
			r := sign(t, unsignedRequest(t, f.now.Add(offset)), HMACSHA256)
			require.NoError(t, f.auth.Authenticate(ctx, r), offset.String())
		}
	})

	t.Run("should reject timestamps beyond the window on both sides", func(t *testing.T) {
		f := newFixture(t, AuthenticatorConfig{Window: 60 * time.Second})
		for _, offset := range []time.Duration{-61 * time.Second, 61 * time.Second} {
			r := sign(t, unsignedRequest(t, f.now.Add(offset)), HMACSHA256)
			err := f.auth.Authenticate(ctx, r)
			require.ErrorIs(t, err, errors.ErrExpiredTimestamp, offset.String())

			_, found, err := f.cache.GetRaw(ctx, noncePrefix+r.Nonce)
			require.NoError(t, err)
			require.False(t, found)
		}
	})

	t.Run("should reject a replayed request", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := sign(t, unsignedRequest(t, f.now), HMACSHA256)

		req.NoError(f.auth.Authenticate(ctx, r))
		req.ErrorIs(f.auth.Authenticate(ctx, r), errors.ErrDuplicateNonce)
	})

	t.Run("should accept exactly one of many concurrent replays", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := sign(t, unsignedRequest(t, f.now), HMACSHA256)

		var accepted, duplicates atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := f.auth.Authenticate(ctx, r)
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, errors.ErrDuplicateNonce):
					duplicates.Add(1)
				}
			}()
		}
		wg.Wait()

		req.Equal(int32(1), accepted.Load())
		req.Equal(int32(49), duplicates.Load())
	})

	t.Run("should reject tampered fields", func(t *testing.T) {
		f := newFixture(t, AuthenticatorConfig{})
		tamper := map[string]func(*SignedRequest){
			"body":      func(r *SignedRequest) { r.Body = []byte(`{"content":"bye"}`) },
			"nonce":     func(r *SignedRequest) { r.Nonce = randomNonce(t) },
			"timestamp": func(r *SignedRequest) { r.Timestamp = strconv.FormatInt(f.now.Unix()-1, 10) },
			"url":       func(r *SignedRequest) { r.URL = "/api/other" },
			"client ip": func(r *SignedRequest) { r.ClientIP = "10.0.0.2" },
		}
		for name, mutate := range tamper {
			r := sign(t, unsignedRequest(t, f.now), HMACSHA256)
			mutate(&r)
			require.ErrorIs(t, f.auth.Authenticate(ctx, r), errors.ErrInvalidSignature, name)
		}
	})

	t.Run("should keep the nonce consumed when the signature fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := unsignedRequest(t, f.now)
		bad := r
		bad.Signature = "deadbeef"

		req.ErrorIs(f.auth.Authenticate(ctx, bad), errors.ErrInvalidSignature)
		req.ErrorIs(f.auth.Authenticate(ctx, sign(t, r, HMACSHA256)), errors.ErrDuplicateNonce)
	})

	t.Run("should reject unknown clients", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{})
		r := unsignedRequest(t, f.now)
		r.ClientID = "stranger"
		req.ErrorIs(f.auth.Authenticate(ctx, sign(t, r, HMACSHA256)), errors.ErrUnknownClient)
	})

	t.Run("should reject a replay of a future-stamped request at the far edge of the window", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{Window: 60 * time.Second})
		r := sign(t, unsignedRequest(t, f.now.Add(60*time.Second)), HMACSHA256)
		req.NoError(f.auth.Authenticate(ctx, r))

		// When the request is now exactly window old
		f.clock = f.now.Add(120 * time.Second)
		req.ErrorIs(f.auth.Authenticate(ctx, r), errors.ErrDuplicateNonce)
	})

	t.Run("should keep nonces for twice a wide window", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, AuthenticatorConfig{Window: 5 * time.Minute})
		req.Equal(MinNonceTTL(5*time.Minute), f.auth.ledger.TTL())

		r := sign(t, unsignedRequest(t, f.now.Add(5*time.Minute)), HMACSHA256)
		req.NoError(f.auth.Authenticate(ctx, r))
		f.clock = f.now.Add(10 * time.Minute)
		req.ErrorIs(f.auth.Authenticate(ctx, r), errors.ErrDuplicateNonce)
	})

	t.Run("should not forget a consumed nonce under a flood of junk", func(t *testing.T) {
		req := require.New(t)
		f := newSizedFixture(t, AuthenticatorConfig{}, 4)
		victim := sign(t, unsignedRequest(t, f.now), HMACSHA256)
		req.NoError(f.auth.Authenticate(ctx, victim))

		for range 8 {
			junk := unsignedRequest(t, f.now)
			junk.Signature = "deadbeef"
			req.Error(f.auth.Authenticate(ctx, junk))
		}

		req.ErrorIs(f.auth.Authenticate(ctx, victim), errors.ErrDuplicateNonce)
	})
}
