package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/framecast/framecast/internal/config"
	"github.com/framecast/framecast/internal/logger"
)

const (
	defaultThickness = 2
	baseFontSize     = 13.0
	labelPadding     = 3.0

	// Labels are drawn above the box unless its top edge is within this
	// many pixels of the frame top, in which case the label moves inside.
	labelTopThreshold = 20
)

var (
	defaultBoxColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	defaultLabelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// drawer wraps a gg context for one annotation pass over a single frame
type drawer struct {
	dc    *gg.Context
	faces *faceCache
}

func newDrawer(img *image.RGBA, faces *faceCache) *drawer {
	return &drawer{dc: gg.NewContextForRGBA(img), faces: faces}
}

// drawBox strokes one box outline and renders its label
func (d *drawer) drawBox(b config.Box, x1, y1, x2, y2 int) {
	boxColor := parseColor(b.Color, defaultBoxColor)
	thickness := b.Thickness
	if thickness <= 0 {
		thickness = defaultThickness
	}

	d.dc.SetColor(boxColor)
	d.dc.SetLineWidth(float64(thickness))
	d.dc.DrawRectangle(float64(x1), float64(y1), float64(x2-x1), float64(y2-y1))
	d.dc.Stroke()

	if b.Label != "" {
		d.drawLabel(b, boxColor, x1, y1)
	}
}

// drawLabel renders the label text with an opaque background rectangle
// sized to the text extent, in the box color, anchored to the box top edge
func (d *drawer) drawLabel(b config.Box, boxColor color.RGBA, x1, y1 int) {
	face, err := d.faces.face(b.FontScale)
	if err != nil {
		logger.WithComponent("overlay").Warn().
			Err(err).
			Float64("font_scale", b.FontScale).
			Msg("Failed to build label font face, skipping label")
		return
	}
	d.dc.SetFontFace(face)

	tw, th := d.dc.MeasureString(b.Label)
	bgW := tw + 2*labelPadding
	bgH := th + 2*labelPadding

	var bgY float64
	if y1 > labelTopThreshold {
		bgY = float64(y1) - bgH
	} else {
		bgY = float64(y1)
	}

	d.dc.SetColor(boxColor)
	d.dc.DrawRectangle(float64(x1), bgY, bgW, bgH)
	d.dc.Fill()

	d.dc.SetColor(parseColor(b.LabelColor, defaultLabelColor))
	d.dc.DrawString(b.Label, float64(x1)+labelPadding, bgY+th+labelPadding/2)
}

// faceCache builds and caches font faces per font scale
type faceCache struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

func newFaceCache() *faceCache {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		// goregular.TTF is embedded and known-good
		panic(fmt.Sprintf("failed to parse embedded font: %v", err))
	}
	return &faceCache{font: f, faces: make(map[float64]font.Face)}
}

func (c *faceCache) face(scale float64) (font.Face, error) {
	if scale <= 0 {
		scale = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.faces[scale]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.font, &opentype.FaceOptions{
		Size:    baseFontSize * scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	c.faces[scale] = f
	return f, nil
}

// parseColor parses "#RRGGBB" or "#RRGGBBAA" strings, falling back to the
// provided default for empty or malformed values
func parseColor(s string, fallback color.RGBA) color.RGBA {
	if s == "" {
		return fallback
	}

	var r, g, b, a uint8
	a = 255
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &r, &g, &b, &a)
	default:
		err = fmt.Errorf("unsupported color format %q", s)
	}
	if err != nil {
		logger.WithComponent("overlay").Warn().
			Str("color", s).
			Msg("Invalid color, using default")
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: a}
}
