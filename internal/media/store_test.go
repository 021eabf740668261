package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"kindred/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLocalStore_UploadNormalizesToWebP(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "http://cdn.test/media/", 5)

	obj, err := store.Upload(context.Background(), UploadInput{OwnerID: 1, Content: pngBytes(t, 3200, 800)})
	require.NoError(t, err)

	assert.Equal(t, MaxDimension, obj.Width)
	assert.Equal(t, 400, obj.Height)
	assert.Equal(t, "http://cdn.test/media/"+obj.ID, obj.URL)
	assert.True(t, validObjectID(obj.ID))

	data, err := os.ReadFile(filepath.Join(dir, obj.ID))
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WEBP", string(data[8:12]))
}

func TestLocalStore_UploadRejectsBadInput(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "/media", 1)
	ctx := context.Background()

	_, err := store.Upload(ctx, UploadInput{})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = store.Upload(ctx, UploadInput{Content: []byte("plain text, not an image")})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = store.Upload(ctx, UploadInput{Content: make([]byte, 2*1024*1024)})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestLocalStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "/media", 5)
	ctx := context.Background()

	obj, err := store.Upload(ctx, UploadInput{Content: pngBytes(t, 10, 10)})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, obj.ID))
	_, err = os.Stat(filepath.Join(dir, obj.ID))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(ctx, obj.ID), "deleting twice is fine")
	assert.Error(t, store.Delete(ctx, "../etc/passwd"))
}
