package overlay

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framecast/framecast/internal/config"
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func framesEqual(a, b *image.RGBA) bool {
	if a.Rect != b.Rect {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

func TestNormalizeBoxAbsolute(t *testing.T) {
	x1, y1, x2, y2, ok := normalizeBox(config.Box{X1: 10, Y1: 20, X2: 60, Y2: 80}, 200, 100)
	require.True(t, ok)
	assert.Equal(t, 10, x1)
	assert.Equal(t, 20, y1)
	assert.Equal(t, 60, x2)
	assert.Equal(t, 80, y2)
}

func TestNormalizeBoxFractional(t *testing.T) {
	b := config.Box{X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5, UsePercentage: true}
	x1, y1, x2, y2, ok := normalizeBox(b, 200, 100)
	require.True(t, ok)
	assert.Equal(t, 20, x1)
	assert.Equal(t, 10, y1)
	assert.Equal(t, 100, x2)
	assert.Equal(t, 50, y2)
}

func TestNormalizeBoxClampsToFrame(t *testing.T) {
	x1, y1, x2, y2, ok := normalizeBox(config.Box{X1: -50, Y1: -10, X2: 500, Y2: 300}, 200, 100)
	require.True(t, ok)
	assert.Equal(t, 0, x1)
	assert.Equal(t, 0, y1)
	assert.Equal(t, 200, x2)
	assert.Equal(t, 100, y2)
}

func TestNormalizeBoxRejectsDegenerate(t *testing.T) {
	// Inverted coordinates
	_, _, _, _, ok := normalizeBox(config.Box{X1: 80, Y1: 20, X2: 10, Y2: 60}, 200, 100)
	assert.False(t, ok)

	// Box entirely outside the frame collapses onto the edge
	_, _, _, _, ok = normalizeBox(config.Box{X1: 300, Y1: 10, X2: 400, Y2: 60}, 200, 100)
	assert.False(t, ok)

	// Zero area
	_, _, _, _, ok = normalizeBox(config.Box{X1: 50, Y1: 50, X2: 50, Y2: 90}, 200, 100)
	assert.False(t, ok)
}

func TestApplyDrawsConfiguredBox(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Enabled: true,
		Boxes: []config.Box{
			{X1: 10, Y1: 10, X2: 50, Y2: 50, Color: "#ff0000", Thickness: 2},
		},
	}, rand.New(rand.NewSource(1)))

	frame := blankFrame(100, 100)
	before := blankFrame(100, 100)
	a.Apply(frame)

	assert.False(t, framesEqual(before, frame), "drawing a box must change pixels")
}

func TestApplySkipsDegenerateBoxWithoutPanic(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Enabled: true,
		Boxes: []config.Box{
			{X1: 80, Y1: 20, X2: 10, Y2: 60}, // inverted, skipped
			{X1: 5, Y1: 5, X2: 40, Y2: 40, Label: "ok"},
		},
	}, rand.New(rand.NewSource(1)))

	frame := blankFrame(100, 100)
	before := blankFrame(100, 100)
	a.Apply(frame)

	assert.False(t, framesEqual(before, frame), "the valid box must still be drawn")
}

func TestApplyNoBoxesLeavesFrameUntouched(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{Enabled: true}, rand.New(rand.NewSource(1)))
	frame := blankFrame(64, 64)
	before := blankFrame(64, 64)
	a.Apply(frame)
	assert.True(t, framesEqual(before, frame))
}

func TestGenerateBoxesWithinBounds(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Random: config.RandomBoxes{Enabled: true, Count: 20, MinSize: 0.1, MaxSize: 0.3},
	}, rand.New(rand.NewSource(42)))

	boxes := a.generateBoxes(640, 480)
	require.Len(t, boxes, 20)
	for i, b := range boxes {
		assert.GreaterOrEqual(t, b.X1, 0.0, "box %d", i)
		assert.GreaterOrEqual(t, b.Y1, 0.0, "box %d", i)
		assert.LessOrEqual(t, b.X2, 640.0, "box %d", i)
		assert.LessOrEqual(t, b.Y2, 480.0, "box %d", i)
		assert.Less(t, b.X1, b.X2, "box %d", i)
		assert.Less(t, b.Y1, b.Y2, "box %d", i)

		w := (b.X2 - b.X1) / 640.0
		assert.GreaterOrEqual(t, w, 0.09, "box %d size below minimum", i)
		assert.LessOrEqual(t, w, 0.31, "box %d size above maximum", i)
	}
}

func TestGenerateBoxesDeterministicWithSeed(t *testing.T) {
	cfg := config.OverlayConfig{
		Random: config.RandomBoxes{Enabled: true, Count: 5, MinSize: 0.1, MaxSize: 0.4},
	}
	first := NewAnnotator(cfg, rand.New(rand.NewSource(7))).generateBoxes(320, 240)
	second := NewAnnotator(cfg, rand.New(rand.NewSource(7))).generateBoxes(320, 240)
	assert.Equal(t, first, second)
}

func TestGenerateBoxesSkipsTinyFrame(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Random: config.RandomBoxes{Enabled: true, Count: 3, MinSize: 0.2, MaxSize: 0.5},
	}, rand.New(rand.NewSource(1)))

	// 0.2 * 4 < 1: no box can satisfy the minimum size
	assert.Nil(t, a.generateBoxes(4, 4))
}

func TestApplyDoesNotGrowConfiguredBoxList(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Boxes: []config.Box{{X1: 1, Y1: 1, X2: 10, Y2: 10}},
		Random: config.RandomBoxes{
			Enabled: true, Count: 2, MinSize: 0.1, MaxSize: 0.2,
		},
	}, rand.New(rand.NewSource(3)))

	frame := blankFrame(100, 100)
	a.Apply(frame)
	a.Apply(frame)
	assert.Len(t, a.boxes, 1, "generated boxes must not leak into the configured list")
}

func TestDrawLabelChangesPixelsAboveBox(t *testing.T) {
	a := NewAnnotator(config.OverlayConfig{
		Boxes: []config.Box{
			{X1: 20, Y1: 50, X2: 80, Y2: 90, Color: "#00ff00", Label: "person", FontScale: 1},
		},
	}, rand.New(rand.NewSource(1)))

	frame := blankFrame(120, 120)
	a.Apply(frame)

	// The label background sits directly above the box top edge
	changed := false
	for y := 30; y < 50 && !changed; y++ {
		for x := 20; x < 80; x++ {
			c := frame.RGBAAt(x, y)
			if c.R != 0 || c.G != 0 || c.B != 0 {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "label background must be drawn above the box")
}

func TestParseColor(t *testing.T) {
	fallback := color.RGBA{R: 1, G: 2, B: 3, A: 255}

	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 64, A: 255}, parseColor("#ff0040", fallback))
	assert.Equal(t, color.RGBA{R: 16, G: 32, B: 48, A: 128}, parseColor("#10203080", fallback))
	assert.Equal(t, fallback, parseColor("", fallback))
	assert.Equal(t, fallback, parseColor("red", fallback))
	assert.Equal(t, fallback, parseColor("#zzz", fallback))
}
