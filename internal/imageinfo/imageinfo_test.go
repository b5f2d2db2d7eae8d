package imageinfo

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIsImageName(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "b.png", "c.gif", "d.bmp", "e.webp", "f.svg"} {
		assert.True(t, IsImageName(name), name)
	}
	for _, name := range []string{"a.txt", "noext", "a.metadata.jpg.json", "tiff.tif"} {
		assert.False(t, IsImageName(name), name)
	}
}

func TestInspectPNG(t *testing.T) {
	info := Inspect("whatever.jpg", pngBytes(t, 7, 3))
	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, 7, info.Width)
	assert.Equal(t, 3, info.Height)
}

func TestInspectSVG(t *testing.T) {
	info := Inspect("icon.svg", []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 12"></svg>`))
	assert.Equal(t, "image/svg+xml", info.MimeType)
	assert.Equal(t, 24, info.Width)
	assert.Equal(t, 12, info.Height)

	info = Inspect("icon.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100px" height="50"></svg>`))
	assert.Equal(t, 100, info.Width)
	assert.Equal(t, 50, info.Height)
}

func TestInspectGarbageDegradesToZero(t *testing.T) {
	info := Inspect("broken.png", []byte("definitely not an image"))
	assert.Equal(t, "image/png", info.MimeType)
	assert.Zero(t, info.Width)
	assert.Zero(t, info.Height)
}
