package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// MaxSide is the largest width or height Fit will decode.
const MaxSide = 16000

// ErrTooLarge is returned by Fit for images whose decoded size exceeds the
// decode ceiling.
var ErrTooLarge = errors.New("image dimensions exceed decode limit")

// Sniff detects JPEG and PNG by magic bytes and returns "" for anything else.
func Sniff(b []byte) string {
	// JPEG: FF D8
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return MimeJPEG
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return MimePNG
	}
	return ""
}

func Supported(b []byte) bool { return Sniff(b) != "" }

// DataURL embeds b as a data: URI for inline display.
func DataURL(b []byte) string {
	mime := Sniff(b)
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

// Fit returns b unchanged when its pixel count is within maxPixels (or
// maxPixels <= 0); otherwise the image is scaled down preserving the aspect
// ratio and re-encoded in its original format. Images wider or taller than
// MaxSide, or with more than 4*maxPixels pixels, are rejected with ErrTooLarge
// before any pixel data is decoded.
func Fit(b []byte, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		return b, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	total := cfg.Width * cfg.Height
	if total <= maxPixels {
		return b, nil
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide || total > 4*maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	scale := math.Sqrt(float64(maxPixels) / float64(total))
	w := max(int(float64(cfg.Width)*scale), 1)
	h := max(int(float64(cfg.Height)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&out, dst)
	default:
		err = jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return out.Bytes(), nil
}
