//go:generate go run go.uber.org/mock/mockgen -source=token.go -destination=../mocks/mock_identity_provider.go -package=mocks
package auth

import (
	"chat-relay/errors"
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityProvider verifies bearer tokens and yields the subject id.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Claims is the payload of tokens issued by JWTProvider.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider issues and verifies HS256 tokens.
type JWTProvider struct {
	key    []byte
	issuer string
}

func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{key: []byte(secret), issuer: issuer}
}

func (p *JWTProvider) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
}

// Verify fails closed: any parse, signature, expiry or issuer problem, or an
// empty subject, is errors.ErrInvalidToken.
func (p *JWTProvider) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", errors.ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", errors.ErrInvalidToken
	}
	return claims.Subject, nil
}
