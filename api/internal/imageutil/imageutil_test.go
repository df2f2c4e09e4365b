package imageutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	assert.Equal(t, MimePNG, Sniff(encodePNG(t, 2, 2)))
	assert.Equal(t, MimeJPEG, Sniff(encodeJPEG(t, 2, 2)))
	assert.Equal(t, "", Sniff([]byte("GIF89a")))
	assert.Equal(t, "", Sniff(nil))
	assert.False(t, Supported([]byte("%PDF-1.7")))
}

func TestDataURL(t *testing.T) {
	assert.True(t, strings.HasPrefix(DataURL(encodePNG(t, 1, 1)), "data:image/png;base64,"))
	assert.Equal(t, "data:application/octet-stream;base64,eA==", DataURL([]byte("x")))
}

func TestFit(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		in := []byte("not an image")
		out, err := Fit(in, 0)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("within limit is untouched", func(t *testing.T) {
		in := encodePNG(t, 10, 10)
		out, err := Fit(in, 100)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("png is scaled down", func(t *testing.T) {
		out, err := Fit(encodePNG(t, 200, 100), 5000)
		require.NoError(t, err)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})

	t.Run("jpeg stays jpeg", func(t *testing.T) {
		out, err := Fit(encodeJPEG(t, 400, 400), 50000)
		require.NoError(t, err)
		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.LessOrEqual(t, cfg.Width*cfg.Height, 50000)
	})

	t.Run("far over the limit is rejected", func(t *testing.T) {
		_, err := Fit(encodePNG(t, 200, 200), 1000)
		require.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("huge header is rejected without decoding", func(t *testing.T) {
		_, err := Fit(pngHeader(60000, 60000), 18_000_000)
		require.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := Fit([]byte("garbage"), 10)
		require.Error(t, err)
	})
}

// pngHeader returns a PNG signature and IHDR chunk announcing a w x h
// grayscale image with no pixel data.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:], w)
	binary.BigEndian.PutUint32(data[4:], h)
	data[8] = 8 // bit depth, color type 0 (gray)
	chunk := append([]byte("IHDR"), data...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
