package auth

import (
	"bytes"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	ClientIDKey contextKey = "client_id"
	SubjectKey  contextKey = "subject"
)

const DefaultMaxBody = 10 << 20

// Middleware rejects any request whose signature does not verify. The body is
// read once for the canonical string and handed back to the next handler.
// A body over maxBody is refused before authentication, so its nonce stays
// unused.
func Middleware(log *slog.Logger, a *Authenticator, maxBody int64) func(http.Handler) http.Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, fmt.Errorf("%w: limit is %d bytes", errors.ErrBodyTooLarge, tooLarge.Limit))
				return
			}
			if err != nil {
				WriteError(w, fmt.Errorf("%w: unreadable body", errors.ErrValidation))
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			signed := FromHTTPRequest(r, body)
			if err := a.Authenticate(r.Context(), signed); err != nil {
				log.Info("Signed request rejected",
					"client_id", signed.ClientID,
					"request_id", signed.RequestID,
					"url", signed.URL,
					"error", err)
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ClientIDKey, signed.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteError renders the structured error body used across the HTTP API.
func WriteError(w http.ResponseWriter, err error) {
	resp := errors.Classify(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// ClientIDFrom returns the authenticated client id, if any.
func ClientIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ClientIDKey).(string)
	return id, ok
}

// SubjectFrom returns the identity-provider subject, if any.
func SubjectFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SubjectKey).(string)
	return id, ok
}
