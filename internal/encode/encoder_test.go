package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 128
		img.Pix[i+1] = 128
		img.Pix[i+2] = 128
		img.Pix[i+3] = 255
	}
	return img
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, ParseFormat("jpeg"))
	assert.Equal(t, FormatJPEG, ParseFormat("jpg"))
	assert.Equal(t, FormatJPEG, ParseFormat("JPEG"))
	assert.Equal(t, FormatWebP, ParseFormat("webp"))
	assert.Equal(t, FormatPNG, ParseFormat("png"))
	assert.Equal(t, FormatRaw, ParseFormat("raw"))
	assert.Equal(t, FormatRaw, ParseFormat("rgba"))

	// Unknown names fall back rather than fail
	assert.Equal(t, FormatJPEG, ParseFormat("tiff"))
	assert.Equal(t, FormatJPEG, ParseFormat(""))
}

func TestFormatMIME(t *testing.T) {
	assert.Equal(t, "image/jpeg", FormatJPEG.MIME())
	assert.Equal(t, "image/webp", FormatWebP.MIME())
	assert.Equal(t, "image/png", FormatPNG.MIME())
	assert.Equal(t, "application/octet-stream", FormatRaw.MIME())
}

func TestEncodeJPEG(t *testing.T) {
	enc := New("jpeg", 80, 0)
	data, err := enc.Encode(testFrame(640, 480))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// JPEG SOI marker
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestEncodeJPEGClampsQualityFloor(t *testing.T) {
	enc := New("jpeg", 0, 0)
	data, err := enc.Encode(testFrame(64, 48))
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestEncodeWebP(t *testing.T) {
	enc := New("webp", 80, 0)
	data, err := enc.Encode(testFrame(640, 480))
	require.NoError(t, err)
	require.True(t, len(data) > 12)

	// RIFF container with WEBP fourcc
	assert.Equal(t, []byte("RIFF"), data[:4])
	assert.Equal(t, []byte("WEBP"), data[8:12])

	img, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestEncodePNG(t *testing.T) {
	enc := New("png", 80, 0)
	data, err := enc.Encode(testFrame(320, 240))
	require.NoError(t, err)
	require.True(t, len(data) > 8)

	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestEncodeRaw(t *testing.T) {
	enc := New("raw", 80, 0)
	frame := testFrame(16, 8)
	data, err := enc.Encode(frame)
	require.NoError(t, err)

	assert.Len(t, data, 16*8*4)
	assert.Equal(t, frame.Pix, data)

	// The output must not alias the frame's pixel buffer
	data[0] = 7
	assert.NotEqual(t, frame.Pix[0], data[0])
}

func TestDownscaleWideFrame(t *testing.T) {
	enc := New("png", 80, 320)
	data, err := enc.Encode(testFrame(640, 480))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy(), "aspect ratio must be preserved")
}

func TestDownscaleNeverUpscales(t *testing.T) {
	enc := New("png", 80, 1920)
	data, err := enc.Encode(testFrame(640, 480))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 480, img.Bounds().Dy())
}

func TestDownscaleDisabledByZeroMaxWidth(t *testing.T) {
	enc := New("raw", 80, 0)
	data, err := enc.Encode(testFrame(640, 480))
	require.NoError(t, err)
	assert.Len(t, data, 640*480*4)
}

func TestPNGLevelMapping(t *testing.T) {
	assert.Equal(t, png.BestSpeed, pngLevel(100))
	assert.Equal(t, png.BestSpeed, pngLevel(67))
	assert.Equal(t, png.DefaultCompression, pngLevel(66))
	assert.Equal(t, png.DefaultCompression, pngLevel(34))
	assert.Equal(t, png.BestCompression, pngLevel(33))
	assert.Equal(t, png.BestCompression, pngLevel(0))
}

func TestContentTypeTracksFormat(t *testing.T) {
	assert.Equal(t, "image/webp", New("webp", 80, 0).ContentType())
	assert.Equal(t, "image/jpeg", New("bogus", 80, 0).ContentType())
}
