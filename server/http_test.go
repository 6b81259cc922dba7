package server

import (
	"bytes"
	"chat-relay/errors"
	"chat-relay/storage"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func (s *testServer) do(t *testing.T, method, uri string, body []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, uri, bytes.NewReader(body))
	if signed {
		h, err := s.client.Sign(method, uri, body)
		require.NoError(t, err)
		for k, v := range h {
			r.Header[k] = v
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRouter(t *testing.T) {
	t.Run("should serve health checks without a signature", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodGet, "/healthz", nil, false)
		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"status":"ok"}`, rec.Body.String())
	})

	t.Run("should page channel history newest first", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, content := range []string{"one", "two", "three"} {
			req.NoError(s.messages.Store(t.Context(), storage.Message{
				ID: uuid.New(), TargetKind: "channel", TargetID: "general",
				AuthorID: "alice", Content: content, CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		rec := s.do(t, http.MethodGet, "/api/channels/general/messages?limit=2", nil, true)
		req.Equal(http.StatusOK, rec.Code)
		var page struct {
			Messages []storage.Message `json:"messages"`
			Cursor   string            `json:"cursor"`
		}
		req.NoError(json.NewDecoder(rec.Body).Decode(&page))
		req.Len(page.Messages, 2)
		req.Equal("three", page.Messages[0].Content)
		req.Equal("two", page.Messages[1].Content)
		req.NotEmpty(page.Cursor)

		rec = s.do(t, http.MethodGet, "/api/channels/general/messages?limit=2&cursor="+page.Cursor, nil, true)
		req.Equal(http.StatusOK, rec.Code)
		req.NoError(json.NewDecoder(rec.Body).Decode(&page))
		req.Len(page.Messages, 1)
		req.Equal("one", page.Messages[0].Content)
		req.Empty(page.Cursor)
	})

	t.Run("should reject a malformed limit", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodGet, "/api/channels/general/messages?limit=many", nil, true)
		req.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject unsigned API calls", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodGet, "/api/channels/general/messages", nil, false)
		req.Equal(http.StatusBadRequest, rec.Code)
		var resp errors.Response
		req.NoError(json.NewDecoder(rec.Body).Decode(&resp))
		req.Equal("ValidationError", resp.ErrorType)
	})

	t.Run("should upload then destroy a media", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})

		rec := s.do(t, http.MethodPost, "/api/media?folder=avatars&resize=true", pngBytes(t), true)
		req.Equal(http.StatusCreated, rec.Code)
		var media storage.Media
		req.NoError(json.NewDecoder(rec.Body).Decode(&media))
		req.Equal("image/png", media.ContentType)
		req.Equal("http://cdn.test/media/"+media.ID, media.URL)

		rec = s.do(t, http.MethodDelete, "/api/media/"+media.ID, nil, true)
		req.Equal(http.StatusOK, rec.Code)
		req.JSONEq(`{"status":"deleted"}`, rec.Body.String())

		rec = s.do(t, http.MethodDelete, "/api/media/"+media.ID, nil, true)
		req.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("should refuse a disallowed media type", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodPost, "/api/media?folder=docs", []byte("#!/bin/sh\nrm -rf /\n"), true)
		req.Equal(http.StatusBadRequest, rec.Code)
	})

	t.Run("should answer 413 on an upload above the media limit", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodPost, "/api/media?folder=big", bytes.Repeat([]byte{0x89}, 10<<20+1), true)
		req.Equal(http.StatusRequestEntityTooLarge, rec.Code)
		var resp errors.Response
		req.NoError(json.NewDecoder(rec.Body).Decode(&resp))
		req.Equal("ValidationError", resp.ErrorType)
	})

	t.Run("should reject a malformed history cursor", func(t *testing.T) {
		req := require.New(t)
		s := newTestServer(t, HubConfig{})
		rec := s.do(t, http.MethodGet, "/api/channels/general/messages?cursor=zzz", nil, true)
		req.Equal(http.StatusBadRequest, rec.Code)
	})
}
