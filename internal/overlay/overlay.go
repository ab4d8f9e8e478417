package overlay

import (
	"image"
	"math/rand"

	"github.com/framecast/framecast/internal/config"
	"github.com/framecast/framecast/internal/logger"
)

// Annotator draws annotation boxes onto frames before encoding. It holds a
// fixed configured box list and an optional random-box policy whose boxes
// are regenerated on every invocation. A malformed box is skipped, never
// aborts the frame.
type Annotator struct {
	boxes  []config.Box
	random config.RandomBoxes
	rng    *rand.Rand
	faces  *faceCache
}

// NewAnnotator creates an annotator from the overlay configuration. The
// random source is injected so tests can assert deterministic placement.
func NewAnnotator(cfg config.OverlayConfig, rng *rand.Rand) *Annotator {
	return &Annotator{
		boxes:  cfg.Boxes,
		random: cfg.Random,
		rng:    rng,
		faces:  newFaceCache(),
	}
}

// Apply draws all configured and generated boxes onto the frame in place
func (a *Annotator) Apply(img *image.RGBA) {
	boxes := a.boxes
	if a.random.Enabled {
		boxes = append(boxes[:len(boxes):len(boxes)], a.generateBoxes(img.Bounds().Dx(), img.Bounds().Dy())...)
	}
	if len(boxes) == 0 {
		return
	}

	d := newDrawer(img, a.faces)
	for _, box := range boxes {
		x1, y1, x2, y2, ok := normalizeBox(box, img.Bounds().Dx(), img.Bounds().Dy())
		if !ok {
			logger.WithComponent("overlay").Warn().
				Floats64("coords", []float64{box.X1, box.Y1, box.X2, box.Y2}).
				Bool("use_percentage", box.UsePercentage).
				Msg("Skipping degenerate annotation box")
			continue
		}
		d.drawBox(box, x1, y1, x2, y2)
	}
}

// normalizeBox resolves a box to absolute pixel coordinates clamped to the
// frame bounds. ok is false when the clamped box has no area.
func normalizeBox(b config.Box, width, height int) (x1, y1, x2, y2 int, ok bool) {
	fx1, fy1, fx2, fy2 := b.X1, b.Y1, b.X2, b.Y2
	if b.UsePercentage {
		fx1 *= float64(width)
		fx2 *= float64(width)
		fy1 *= float64(height)
		fy2 *= float64(height)
	}

	x1 = clamp(int(fx1), 0, width)
	x2 = clamp(int(fx2), 0, width)
	y1 = clamp(int(fy1), 0, height)
	y2 = clamp(int(fy2), 0, height)

	return x1, y1, x2, y2, x1 < x2 && y1 < y2
}

// generateBoxes produces the random box set for one frame. For each box a
// uniform size fraction in [MinSize,MaxSize] is drawn, then a uniform
// top-left position such that the box fits entirely within the frame.
// Returns nil when the frame is too small for the minimum size.
func (a *Annotator) generateBoxes(width, height int) []config.Box {
	minW := int(a.random.MinSize * float64(width))
	minH := int(a.random.MinSize * float64(height))
	if minW < 1 || minH < 1 {
		logger.WithComponent("overlay").Warn().
			Int("width", width).
			Int("height", height).
			Float64("min_size", a.random.MinSize).
			Msg("Frame too small for random boxes")
		return nil
	}

	boxes := make([]config.Box, 0, a.random.Count)
	for i := 0; i < a.random.Count; i++ {
		frac := a.random.MinSize + a.rng.Float64()*(a.random.MaxSize-a.random.MinSize)
		bw := int(frac * float64(width))
		bh := int(frac * float64(height))
		if bw > width {
			bw = width
		}
		if bh > height {
			bh = height
		}

		x := a.rng.Intn(width - bw + 1)
		y := a.rng.Intn(height - bh + 1)

		boxes = append(boxes, config.Box{
			X1:        float64(x),
			Y1:        float64(y),
			X2:        float64(x + bw),
			Y2:        float64(y + bh),
			Color:     randomPalette[a.rng.Intn(len(randomPalette))],
			Thickness: 2,
		})
	}
	return boxes
}

// randomPalette holds the colors used for generated boxes
var randomPalette = []string{"#ff4040", "#40c040", "#4080ff", "#ffc040", "#c040ff"}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
