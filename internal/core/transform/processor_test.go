package transform

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Prism/internal/core/directives"
)

// createGradient creates an image with enough detail for quality to affect output size.
func createGradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 255})
		}
	}
	return img
}

func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, createGradient(width, height), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createGradient(width, height)))
	return buf.Bytes()
}

// withOrientation splices an EXIF APP1 segment carrying the given orientation tag
// directly after the JPEG SOI marker.
func withOrientation(t *testing.T, jpegData []byte, orientation uint16) []byte {
	t.Helper()
	require.True(t, bytes.HasPrefix(jpegData, []byte{0xFF, 0xD8}))

	var tiff bytes.Buffer
	tiff.WriteString("II")
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x2A))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))      // one IFD entry
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112)) // Orientation
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))      // SHORT
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0)) // no next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := append([]byte{0xFF, 0xD8}, segment...)
	return append(out, jpegData[2:]...)
}

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestProcess_ResizeNeverUpscales(t *testing.T) {
	proc := NewProcessor(0)
	src := createTestJPEG(t, 400, 200)

	tests := []struct {
		name       string
		width      int
		height     int
		wantWidth  int
		wantHeight int
	}{
		{name: "width only", width: 100, wantWidth: 100, wantHeight: 50},
		{name: "height only", height: 50, wantWidth: 100, wantHeight: 50},
		{name: "width larger than source is dropped", width: 1000, wantWidth: 400, wantHeight: 200},
		{name: "height larger than source is dropped", height: 900, wantWidth: 400, wantHeight: 200},
		{name: "oversized width falls back to height", width: 1000, height: 100, wantWidth: 200, wantHeight: 100},
		{name: "both dimensions fit inside box", width: 100, height: 100, wantWidth: 100, wantHeight: 50},
		{name: "box taller than wide", width: 300, height: 60, wantWidth: 120, wantHeight: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := proc.Process(src, "image/jpeg", directives.Set{Width: tt.width, Height: tt.height})
			require.NoError(t, err)
			cfg, _ := decodeConfig(t, out.Data)
			assert.Equal(t, tt.wantWidth, cfg.Width)
			assert.Equal(t, tt.wantHeight, cfg.Height)
		})
	}
}

func TestProcess_AutoOrient(t *testing.T) {
	proc := NewProcessor(0)
	// Orientation 6: stored landscape, displayed rotated 90 degrees clockwise.
	src := withOrientation(t, createTestJPEG(t, 40, 20), 6)

	out, err := proc.Process(src, "image/jpeg", directives.Set{Format: directives.FormatPNG})
	require.NoError(t, err)
	cfg, format := decodeConfig(t, out.Data)
	assert.Equal(t, "png", format)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestProcess_FormatAndContentType(t *testing.T) {
	proc := NewProcessor(0)
	src := createTestPNG(t, 64, 32)

	tests := []struct {
		format      directives.Format
		wantType    string
		wantDecoder string
	}{
		{format: directives.FormatJPEG, wantType: "image/jpeg", wantDecoder: "jpeg"},
		{format: directives.FormatPNG, wantType: "image/png", wantDecoder: "png"},
		{format: directives.FormatGIF, wantType: "image/gif", wantDecoder: "gif"},
		{format: directives.FormatWebP, wantType: "image/webp", wantDecoder: "webp"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := proc.Process(src, "image/png", directives.Set{Format: tt.format})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, out.ContentType)
			assert.Equal(t, tt.format, out.Format)
			_, decoder := decodeConfig(t, out.Data)
			assert.Equal(t, tt.wantDecoder, decoder)
		})
	}
}

func TestProcess_AVIF(t *testing.T) {
	if testing.Short() {
		t.Skip("avif encoding is slow")
	}
	proc := NewProcessor(0)
	out, err := proc.Process(createTestPNG(t, 32, 32), "image/png", directives.Set{Format: directives.FormatAVIF, Quality: 50})
	require.NoError(t, err)
	assert.Equal(t, "image/avif", out.ContentType)
	assert.NotEmpty(t, out.Data)
}

func TestProcess_QualityAppliesToLossyOnly(t *testing.T) {
	proc := NewProcessor(0)
	src := createTestPNG(t, 128, 128)

	low, err := proc.Process(src, "image/png", directives.Set{Format: directives.FormatJPEG, Quality: 10})
	require.NoError(t, err)
	high, err := proc.Process(src, "image/png", directives.Set{Format: directives.FormatJPEG, Quality: 95})
	require.NoError(t, err)
	assert.Less(t, len(low.Data), len(high.Data))

	lowPNG, err := proc.Process(src, "image/png", directives.Set{Format: directives.FormatPNG, Quality: 10})
	require.NoError(t, err)
	highPNG, err := proc.Process(src, "image/png", directives.Set{Format: directives.FormatPNG, Quality: 95})
	require.NoError(t, err)
	assert.Equal(t, lowPNG.Data, highPNG.Data)
}

func TestProcess_NoFormatKeepsSourceFormat(t *testing.T) {
	proc := NewProcessor(0)

	out, err := proc.Process(createTestPNG(t, 100, 50), "image/png", directives.Set{Width: 50})
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType)

	out, err = proc.Process(createTestJPEG(t, 100, 50), "", directives.Set{Width: 50})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.ContentType)
}

func TestProcess_OriginalPassesThrough(t *testing.T) {
	proc := NewProcessor(0)
	src := createTestPNG(t, 10, 10)

	out, err := proc.Process(src, "image/png", directives.Set{})
	require.NoError(t, err)
	assert.Equal(t, src, out.Data)
	assert.Equal(t, "image/png", out.ContentType)

	out, err = proc.Process(src, "application/octet-stream", directives.Set{})
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.ContentType, "sniffed from bytes")
}

func TestProcess_SVG(t *testing.T) {
	proc := NewProcessor(0)
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"/>`)

	out, err := proc.Process(svg, "image/svg+xml", directives.Set{Format: directives.FormatSVG, Width: 5})
	require.NoError(t, err)
	assert.Equal(t, svg, out.Data)
	assert.Equal(t, "image/svg+xml", out.ContentType)

	out, err = proc.Process(svg, "", directives.Set{Width: 5})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", out.ContentType, "sniffed svg")

	_, err = proc.Process(svg, "image/svg+xml", directives.Set{Format: directives.FormatPNG})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = proc.Process(createTestPNG(t, 10, 10), "image/png", directives.Set{Format: directives.FormatSVG})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProcess_Errors(t *testing.T) {
	proc := NewProcessor(0)

	_, err := proc.Process(nil, "image/jpeg", directives.Set{Width: 10})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = proc.Process([]byte("definitely not an image"), "", directives.Set{Width: 10})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	truncated := createTestJPEG(t, 50, 50)
	_, err = proc.Process(truncated[:len(truncated)/2], "image/jpeg", directives.Set{Width: 10})
	assert.Error(t, err)
}

func TestProcess_MaxSourcePixels(t *testing.T) {
	proc := NewProcessor(100 * 100)

	_, err := proc.Process(createTestPNG(t, 101, 100), "image/png", directives.Set{Width: 10})
	assert.ErrorIs(t, err, ErrResourceLimit)

	_, err = proc.Process(createTestPNG(t, 100, 100), "image/png", directives.Set{Width: 10})
	assert.NoError(t, err)
}

func TestProcess_Deterministic(t *testing.T) {
	proc := NewProcessor(0)
	src := createTestJPEG(t, 200, 100)
	set := directives.Set{Format: directives.FormatJPEG, Quality: 70, Width: 80}

	a, err := proc.Process(src, "image/jpeg", set)
	require.NoError(t, err)
	b, err := proc.Process(src, "image/jpeg", set)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}
