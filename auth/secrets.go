//go:generate go run go.uber.org/mock/mockgen -source=secrets.go -destination=../mocks/mock_client_directory.go -package=mocks
package auth

import (
	"chat-relay/cache"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

const secretPrefix = "client-secret:"

// ClientDirectory is the source of truth for client signing secrets.
type ClientDirectory interface {
	// LookupSecret returns errors.ErrUnknownClient for unregistered clients.
	LookupSecret(ctx context.Context, clientID string) (string, error)
}

// SecretResolver reads secrets through the cache and fills it on miss.
type SecretResolver struct {
	cache     *cache.Cache
	directory ClientDirectory
	ttl       time.Duration
	log       *slog.Logger
}

func NewSecretResolver(log *slog.Logger, c *cache.Cache, directory ClientDirectory, ttl time.Duration) *SecretResolver {
	return &SecretResolver{cache: c, directory: directory, ttl: ttl, log: log}
}

func (r *SecretResolver) Resolve(ctx context.Context, clientID string) (string, error) {
	var cached wrapperspb.StringValue
	found, err := r.cache.Get(ctx, secretPrefix+clientID, &cached)
	if err != nil {
		r.log.Warn("Secret cache unavailable, falling back to directory", "client_id", clientID, "error", err)
	}
	if found && cached.GetValue() != "" {
		return cached.GetValue(), nil
	}

	secret, err := r.directory.LookupSecret(ctx, clientID)
	if err != nil {
		return "", err
	}
	if err := r.cache.Set(ctx, secretPrefix+clientID, wrapperspb.String(secret), r.ttl); err != nil {
		r.log.Warn("Failed to cache client secret", "client_id", clientID, "error", err)
	}
	return secret, nil
}

// Invalidate drops the cached secret, e.g. after a rotation in the directory.
func (r *SecretResolver) Invalidate(ctx context.Context, clientID string) error {
	return r.cache.Del(ctx, secretPrefix+clientID)
}

// StaticDirectory serves secrets configured at startup.
type StaticDirectory map[string]string

// ParseStaticDirectory reads "id=secret,id2=secret2".
func ParseStaticDirectory(s string) (StaticDirectory, error) {
	dir := StaticDirectory{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, secret, ok := strings.Cut(pair, "=")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed client secret entry %q", pair)
		}
		dir[id] = secret
	}
	return dir, nil
}

func (d StaticDirectory) LookupSecret(_ context.Context, clientID string) (string, error) {
	secret, ok := d[clientID]
	if !ok {
		return "", errors.ErrUnknownClient
	}
	return secret, nil
}
