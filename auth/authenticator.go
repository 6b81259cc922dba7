package auth

import (
	"chat-relay/errors"
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const DefaultWindow = 60 * time.Second

var validate = validator.New()

type AuthenticatorConfig struct {
	// Window is the accepted clock distance between x-timestamp and now,
	// inclusive on both sides.
	Window    time.Duration
	Algorithm Algorithm
}

// Authenticator verifies signed requests. It holds no global lock: each call
// only touches the nonce ledger and the secret resolver.
type Authenticator struct {
	log     *slog.Logger
	ledger  *NonceLedger
	secrets *SecretResolver
	window  time.Duration
	algo    Algorithm
	now     func() time.Time
}

func NewAuthenticator(log *slog.Logger, ledger *NonceLedger, secrets *SecretResolver, cfg AuthenticatorConfig) *Authenticator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = HMACSHA256
	}
	if ledger.cover(cfg.Window) {
		log.Debug("Nonce TTL raised to cover the freshness window", "window", cfg.Window, "nonce_ttl", ledger.TTL())
	}
	return &Authenticator{
		log:     log,
		ledger:  ledger,
		secrets: secrets,
		window:  cfg.Window,
		algo:    cfg.Algorithm,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate runs the checks in a fixed order and stops at the first
// failure: presence, formats, freshness, nonce consumption, secret lookup,
// signature. A request rejected after the nonce step leaves its nonce
// consumed and nothing else.
func (a *Authenticator) Authenticate(ctx context.Context, r SignedRequest) error {
	if err := checkFields(r); err != nil {
		return err
	}

	ts, err := strconv.ParseInt(r.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp", errors.ErrValidation)
	}
	if !a.fresh(ts) {
		return errors.ErrExpiredTimestamp
	}

	if err := a.ledger.Consume(ctx, r.Nonce); err != nil {
		return err
	}

	secret, err := a.secrets.Resolve(ctx, r.ClientID)
	if err != nil {
		return err
	}

	canonical, err := CanonicalString(r)
	if err != nil {
		return fmt.Errorf("%w: body", errors.ErrValidation)
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(r.Signature), "0x"))
	if err != nil {
		return errors.ErrInvalidSignature
	}
	if !hmac.Equal(provided, mac(canonical, secret, a.algo)) {
		a.log.Debug("Signature mismatch", "client_id", r.ClientID, "request_id", r.RequestID)
		return errors.ErrInvalidSignature
	}
	return nil
}

func (a *Authenticator) fresh(ts int64) bool {
	age := a.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	return age <= int64(a.window/time.Second)
}

// checkFields reports missing fields before malformed ones.
func checkFields(r SignedRequest) error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	missing := lo.Filter(fieldErrors, func(fe validator.FieldError, _ int) bool { return fe.Tag() == "required" })
	if len(missing) > 0 {
		names := lo.Map(missing, func(fe validator.FieldError, _ int) string { return fe.Field() })
		return fmt.Errorf("%w: %s", errors.ErrMissingField, strings.Join(names, ", "))
	}

	for _, fe := range fieldErrors {
		switch fe.Field() {
		case "Nonce":
			return errors.ErrMalformedNonce
		case "RequestID":
			return errors.ErrMalformedID
		}
	}
	return fmt.Errorf("%w: malformed %s", errors.ErrValidation, fieldErrors[0].Field())
}
