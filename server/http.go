package server

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/storage"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

type MediaStore interface {
	Upload(ctx context.Context, data []byte, folder string, resize bool) (storage.Media, error)
	Destroy(ctx context.Context, id string) (string, error)
	// MaxBytes caps every signed request body.
	MaxBytes() int64
}

type HistoryReader interface {
	ChannelHistory(ctx context.Context, channelID, cursor string, limit int) (services.MessagePage, error)
}

var (
	_ MediaStore    = (*storage.DiskMediaStore)(nil)
	_ HistoryReader = (*services.ChatService)(nil)
)

// NewRouter mounts the HTTP surface. Everything but /healthz goes through
// the signed-request middleware, the WebSocket upgrade included.
func NewRouter(log *slog.Logger, authn *auth.Authenticator, hub http.Handler, history HistoryReader, media MediaStore) http.Handler {
	signed := auth.Middleware(log, authn, media.MaxBytes())
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /api/channels/{id}/messages", signed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit")
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		page, err := history.ChannelHistory(r.Context(), r.PathValue("id"), r.URL.Query().Get("cursor"), limit)
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	})))

	// The request body is the raw file.
	mux.Handle("POST /api/media", signed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			auth.WriteError(w, fmt.Errorf("%w: unreadable body", errors.ErrValidation))
			return
		}
		resize, _ := strconv.ParseBool(r.URL.Query().Get("resize"))
		media, err := media.Upload(r.Context(), data, r.URL.Query().Get("folder"), resize)
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, media)
	})))

	mux.Handle("DELETE /api/media/{id...}", signed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, err := media.Destroy(r.Context(), r.PathValue("id"))
		if err != nil {
			auth.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	})))

	mux.Handle("GET /ws", signed(hub))
	return mux
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errors.ErrValidation, key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
