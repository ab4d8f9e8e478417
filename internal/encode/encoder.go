package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"

	"github.com/framecast/framecast/internal/logger"
)

// Format identifies an output image codec
type Format string

const (
	// FormatJPEG is the default fast lossy codec
	FormatJPEG Format = "jpeg"
	// FormatWebP is the higher-compression lossy codec
	FormatWebP Format = "webp"
	// FormatPNG is the lossless codec; quality maps to compression level
	FormatPNG Format = "png"
	// FormatRaw passes RGBA pixel data through without encoding
	FormatRaw Format = "raw"
)

// ParseFormat resolves a codec name from configuration. Unknown names fall
// back to JPEG with a warning.
func ParseFormat(name string) Format {
	switch strings.ToLower(name) {
	case "jpeg", "jpg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	case "png":
		return FormatPNG
	case "raw", "rgba":
		return FormatRaw
	default:
		logger.WithComponent("encode").Warn().
			Str("format", name).
			Msg("Unknown encode format, falling back to jpeg")
		return FormatJPEG
	}
}

// MIME returns the Content-Type for frames encoded in this format
func (f Format) MIME() string {
	switch f {
	case FormatWebP:
		return "image/webp"
	case FormatPNG:
		return "image/png"
	case FormatRaw:
		return "application/octet-stream"
	default:
		return "image/jpeg"
	}
}

// Encoder converts frames to encoded image bytes at a configured quality,
// optionally downscaling wide frames first
type Encoder struct {
	format   Format
	quality  int
	maxWidth int
}

// New creates an encoder. maxWidth limits the output frame width; frames
// wider than it are downscaled before encoding, preserving aspect ratio.
// Zero disables the resize step.
func New(format string, quality, maxWidth int) *Encoder {
	return &Encoder{
		format:   ParseFormat(format),
		quality:  quality,
		maxWidth: maxWidth,
	}
}

// Format returns the resolved output format
func (e *Encoder) Format() Format {
	return e.format
}

// ContentType returns the MIME type for the encoder's output
func (e *Encoder) ContentType() string {
	return e.format.MIME()
}

// Encode converts one frame to encoded bytes
func (e *Encoder) Encode(img *image.RGBA) ([]byte, error) {
	img = e.downscale(img)

	var buf bytes.Buffer
	switch e.format {
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(e.quality)}); err != nil {
			return nil, fmt.Errorf("webp encode failed: %w", err)
		}
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(e.quality)}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode failed: %w", err)
		}
	case FormatRaw:
		return append([]byte(nil), img.Pix...), nil
	default:
		quality := e.quality
		if quality < 1 {
			quality = 1
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode failed: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// downscale shrinks frames wider than maxWidth, preserving aspect ratio.
// Uses bilinear interpolation; this is a bandwidth control, not a quality
// feature. Frames are never scaled up.
func (e *Encoder) downscale(img *image.RGBA) *image.RGBA {
	if e.maxWidth <= 0 {
		return img
	}
	w := img.Bounds().Dx()
	if w <= e.maxWidth {
		return img
	}

	h := img.Bounds().Dy() * e.maxWidth / w
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, e.maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// pngLevel remaps the 0-100 quality scale onto the PNG compression levels:
// high quality favors speed, low quality favors compression.
func pngLevel(quality int) png.CompressionLevel {
	switch {
	case quality >= 67:
		return png.BestSpeed
	case quality >= 34:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
