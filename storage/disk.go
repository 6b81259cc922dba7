package storage

import (
	"bytes"
	"chat-relay/errors"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

var folderPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type Media struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type MediaConfig struct {
	Root    string
	BaseURL string
	// MaxDimension bounds the longest side of resized images.
	MaxDimension int
	MaxBytes     int64
	Allowed      []string
}

// DiskMediaStore writes uploads under Root/<folder>/ and serves them from
// BaseURL. The media id is "<folder>/<file>", so Destroy needs no index.
type DiskMediaStore struct {
	cfg MediaConfig
	log *slog.Logger
}

func NewDiskMediaStore(log *slog.Logger, cfg MediaConfig) (*DiskMediaStore, error) {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1280
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if len(cfg.Allowed) == 0 {
		cfg.Allowed = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "video/mp4", "audio/mpeg", "application/pdf"}
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, err
	}
	return &DiskMediaStore{cfg: cfg, log: log}, nil
}

func (s *DiskMediaStore) MaxBytes() int64 { return s.cfg.MaxBytes }

// Upload stores data after sniffing its real type. With resize set, PNG,
// JPEG and GIF images larger than MaxDimension are scaled down.
func (s *DiskMediaStore) Upload(_ context.Context, data []byte, folder string, resize bool) (Media, error) {
	if !folderPattern.MatchString(folder) {
		return Media{}, fmt.Errorf("%w: invalid folder %q", errors.ErrValidation, folder)
	}
	if len(data) == 0 || int64(len(data)) > s.cfg.MaxBytes {
		return Media{}, fmt.Errorf("%w: media size must be between 1 and %d bytes", errors.ErrValidation, s.cfg.MaxBytes)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), s.cfg.Allowed...) {
		return Media{}, fmt.Errorf("%w: media type %s is not allowed", errors.ErrValidation, mt.String())
	}

	if resize {
		resized, err := s.resize(data, mt.String())
		if err != nil {
			return Media{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
		}
		data = resized
	}

	name := uuid.NewString() + mt.Extension()
	dir := filepath.Join(s.cfg.Root, folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Media{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
		return Media{}, err
	}

	id := path.Join(folder, name)
	s.log.Debug("Media stored", "media_id", id, "content_type", mt.String(), "size", len(data))
	return Media{
		ID:          id,
		URL:         strings.TrimRight(s.cfg.BaseURL, "/") + "/" + id,
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

// Destroy removes a stored media and reports "deleted".
func (s *DiskMediaStore) Destroy(_ context.Context, id string) (string, error) {
	folder, name, ok := strings.Cut(id, "/")
	if !ok || !folderPattern.MatchString(folder) || name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: invalid media id", errors.ErrValidation)
	}
	err := os.Remove(filepath.Join(s.cfg.Root, folder, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w %s", errors.ErrMediaNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return "deleted", nil
}

func (s *DiskMediaStore) resize(data []byte, contentType string) ([]byte, error) {
	var decode func([]byte) (image.Image, error)
	var encode func(*bytes.Buffer, image.Image) error
	switch contentType {
	case "image/png":
		decode = func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }
		encode = func(w *bytes.Buffer, img image.Image) error { return png.Encode(w, img) }
	case "image/jpeg":
		decode = func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) }
		encode = func(w *bytes.Buffer, img image.Image) error { return jpeg.Encode(w, img, &jpeg.Options{Quality: 85}) }
	case "image/gif":
		decode = func(b []byte) (image.Image, error) { return gif.Decode(bytes.NewReader(b)) }
		encode = func(w *bytes.Buffer, img image.Image) error { return gif.Encode(w, img, nil) }
	default:
		return data, nil
	}

	src, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := max(w, h)
	if longest <= s.cfg.MaxDimension {
		return data, nil
	}

	scale := float64(s.cfg.MaxDimension) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale))))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
