package storage

import (
	"bytes"
	"chat-relay/errors"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newMediaStore(t *testing.T) (*DiskMediaStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewDiskMediaStore(slog.New(slog.DiscardHandler), MediaConfig{
		Root:         root,
		BaseURL:      "http://localhost:8080/media/",
		MaxDimension: 64,
	})
	require.NoError(t, err)
	return store, root
}

func TestDiskMediaStore_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("should resize oversized images", func(t *testing.T) {
		req := require.New(t)
		store, root := newMediaStore(t)

		media, err := store.Upload(ctx, pngBytes(t, 256, 128), "avatars", true)
		req.NoError(err)
		req.Equal("image/png", media.ContentType)
		req.Regexp(`^avatars/[0-9a-f-]{36}\.png$`, media.ID)
		req.Equal("http://localhost:8080/media/"+media.ID, media.URL)

		raw, err := os.ReadFile(filepath.Join(root, media.ID))
		req.NoError(err)
		cfg, err := png.DecodeConfig(bytes.NewReader(raw))
		req.NoError(err)
		req.Equal(64, cfg.Width)
		req.Equal(32, cfg.Height)
	})

	t.Run("should keep images untouched without resize", func(t *testing.T) {
		req := require.New(t)
		store, _ := newMediaStore(t)
		data := pngBytes(t, 256, 128)

		media, err := store.Upload(ctx, data, "avatars", false)
		req.NoError(err)
		req.Equal(int64(len(data)), media.Size)
	})

	t.Run("should reject types outside the allow list", func(t *testing.T) {
		req := require.New(t)
		store, _ := newMediaStore(t)

		_, err := store.Upload(ctx, []byte("#!/bin/sh\necho pwned\n"), "docs", false)
		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should reject folders that escape the root", func(t *testing.T) {
		req := require.New(t)
		store, _ := newMediaStore(t)

		_, err := store.Upload(ctx, pngBytes(t, 4, 4), "../etc", false)
		req.ErrorIs(err, errors.ErrValidation)
	})
}

func TestDiskMediaStore_Destroy(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, root := newMediaStore(t)

	media, err := store.Upload(ctx, pngBytes(t, 4, 4), "chat", false)
	req.NoError(err)

	status, err := store.Destroy(ctx, media.ID)
	req.NoError(err)
	req.Equal("deleted", status)
	_, err = os.Stat(filepath.Join(root, media.ID))
	req.ErrorIs(err, os.ErrNotExist)

	_, err = store.Destroy(ctx, media.ID)
	req.ErrorIs(err, errors.ErrMediaNotFound)

	_, err = store.Destroy(ctx, "chat/../../secret")
	req.ErrorIs(err, errors.ErrValidation)
}
