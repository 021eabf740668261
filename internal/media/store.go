// Package media stores chat images. Uploads are decoded, downscaled and
// re-encoded as WebP so stored objects never carry client metadata.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"kindred/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// MaxDimension bounds the longest side of a stored image.
	MaxDimension = 1600
	webpQuality  = 80
	objectExt    = ".webp"
)

// UploadInput is an image as received from a client.
type UploadInput struct {
	OwnerID     uint
	Filename    string
	ContentType string
	Content     []byte
}

// Object is a stored, normalized image.
type Object struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

// Store is the object store the chat and moderation flows depend on.
type Store interface {
	Upload(ctx context.Context, in UploadInput) (*Object, error)
	Delete(ctx context.Context, id string) error
}

// LocalStore keeps objects on the local filesystem.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewLocalStore creates a store rooted at dir, serving objects under baseURL.
func NewLocalStore(dir, baseURL string, maxUploadMB int) *LocalStore {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &LocalStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: int64(maxUploadMB) * 1024 * 1024,
	}
}

// Upload validates, normalizes and writes the image.
func (s *LocalStore) Upload(ctx context.Context, in UploadInput) (*Object, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}
	if !strings.HasPrefix(http.DetectContentType(in.Content), "image/") {
		return nil, models.NewValidationError("Invalid image type")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	normalized := fitWithin(decoded, MaxDimension)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, normalized, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, models.NewInternalError(err)
	}

	id := uuid.NewString() + objectExt
	if err := writeObject(s.path(id), buf.Bytes()); err != nil {
		return nil, models.NewDependencyError(err)
	}

	b := normalized.Bounds()
	return &Object{
		ID:     id,
		URL:    s.baseURL + "/" + id,
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   int64(buf.Len()),
	}, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	if !validObjectID(id) {
		return fmt.Errorf("invalid object id %q", id)
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

// validObjectID accepts only ids this store generated.
func validObjectID(id string) bool {
	raw, ok := strings.CutSuffix(id, objectExt)
	if !ok {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}

func fitWithin(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}
	scale := float64(max) / float64(w)
	if hs := float64(max) / float64(h); hs < scale {
		scale = hs
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

func writeObject(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
