// Package upload provides the image upload capability for message and
// profile pictures.
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploader stores an image payload and returns a URL it can be fetched
// from. Payloads arrive as base64 data URIs ("data:image/png;base64,...")
// or bare base64.
type Uploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

var extByMIME = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStore is an Uploader writing images to a local directory, served
// by the HTTP server under a base URL.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the media directory if needed and returns a store.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory images are written to.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Upload decodes the payload and writes it under a fresh name.
func (s *LocalStore) Upload(ctx context.Context, data string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	encoded, ext, err := splitDataURI(data)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), raw, 0644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	return s.baseURL + "/" + name, nil
}

// splitDataURI strips an optional data-URI prefix and picks a file
// extension from the declared MIME type.
func splitDataURI(data string) (encoded, ext string, err error) {
	if !strings.HasPrefix(data, "data:") {
		return data, ".png", nil
	}

	head, rest, ok := strings.Cut(data, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(head, ";base64") {
		return "", "", fmt.Errorf("data URI is not base64 encoded")
	}

	mime := strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
	ext, ok = extByMIME[mime]
	if !ok {
		return "", "", fmt.Errorf("unsupported image type %q", mime)
	}
	return rest, ext, nil
}
