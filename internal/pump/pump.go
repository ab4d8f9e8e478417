package pump

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/framecast/framecast/internal/logger"
	"github.com/framecast/framecast/internal/source"
	"github.com/framecast/framecast/internal/transport"
)

const (
	// DefaultBackoff is the fixed delay between reconnection attempts
	DefaultBackoff = 5 * time.Second
	// DefaultReportEvery is the throughput reporting window
	DefaultReportEvery = 5 * time.Second
)

// Transformer mutates a frame in place before encoding
type Transformer interface {
	Apply(img *image.RGBA)
}

// Encoder converts a frame to its wire representation
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
}

// Config holds the pump's timing parameters
type Config struct {
	SourceURL   string
	TargetFPS   int
	Backoff     time.Duration // zero means DefaultBackoff
	ReportEvery time.Duration // zero means DefaultReportEvery
}

// Deps are the collaborators driven by the pump's control loop
type Deps struct {
	OpenSource source.Opener
	Session    transport.Session
	Transform  Transformer // optional
	Encode     Encoder
	Reporter   Reporter // optional, defaults to log output

	// Tap observes each outgoing frame after annotation, before encoding.
	// Optional; used for the local preview stream.
	Tap func(img *image.RGBA)
}

// Pump drives the capture → transform → encode → send pipeline on a
// cadence. It owns the reconnection state machine for both the source and
// the transport: every failure path releases both, waits a fixed backoff,
// and restarts from the transport connection. Only context cancellation
// stops it.
type Pump struct {
	cfg      Config
	deps     Deps
	interval time.Duration

	// last-good frame: single retained copy of the most recent successful
	// capture, replaced wholesale and cleared on source reconnection
	lastGood *image.RGBA

	lastEmit         time.Time
	framesSent       uint64
	framesDuplicated uint64
	windowStart      time.Time

	// injectable timing, overridden in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pump. TargetFPS must be positive.
func New(cfg Config, deps Deps) (*Pump, error) {
	if cfg.TargetFPS <= 0 {
		return nil, fmt.Errorf("target FPS must be positive, got %d", cfg.TargetFPS)
	}
	if deps.OpenSource == nil || deps.Session == nil || deps.Encode == nil {
		return nil, fmt.Errorf("pump requires a source opener, a session, and an encoder")
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = DefaultReportEvery
	}
	if deps.Reporter == nil {
		deps.Reporter = NewLogReporter()
	}

	return &Pump{
		cfg:      cfg,
		deps:     deps,
		interval: time.Second / time.Duration(cfg.TargetFPS),
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// Run executes the reconnection state machine until ctx is cancelled
func (p *Pump) Run(ctx context.Context) error {
	log := logger.WithComponent("pump")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// CONNECTING_TRANSPORT
		if err := p.deps.Session.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).
				Dur("backoff", p.cfg.Backoff).
				Msg("Transport connect failed, retrying")
			if err := p.sleep(ctx, p.cfg.Backoff); err != nil {
				return err
			}
			continue
		}

		// CONNECTING_SOURCE
		reader, err := p.deps.OpenSource(p.cfg.SourceURL)
		if err != nil {
			p.deps.Session.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).
				Dur("backoff", p.cfg.Backoff).
				Msg("Source connect failed, retrying")
			if err := p.sleep(ctx, p.cfg.Backoff); err != nil {
				return err
			}
			continue
		}

		// STREAMING
		p.lastGood = nil
		streamErr := p.stream(ctx, reader)

		// Single recovery path for every exit: close source before
		// transport, then back off and restart from DISCONNECTED
		reader.Close()
		p.deps.Session.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(streamErr).
			Dur("backoff", p.cfg.Backoff).
			Msg("Streaming interrupted, reconnecting")
		if err := p.sleep(ctx, p.cfg.Backoff); err != nil {
			return err
		}
	}
}

// stream runs the per-frame loop until a connection-level failure or
// cancellation. The returned error says why streaming stopped.
func (p *Pump) stream(ctx context.Context, reader source.Reader) error {
	log := logger.WithComponent("pump")

	p.framesSent = 0
	p.framesDuplicated = 0
	p.lastEmit = time.Time{}
	p.windowStart = p.now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Rate ceiling: never emit two frames closer than the interval
		if !p.lastEmit.IsZero() {
			if elapsed := p.now().Sub(p.lastEmit); elapsed < p.interval {
				if err := p.sleep(ctx, p.interval-elapsed); err != nil {
					return err
				}
				continue
			}
		}

		frame, err := reader.Read()
		if err != nil {
			if p.lastGood == nil {
				return fmt.Errorf("frame read failed with no fallback frame: %w", err)
			}
			// Keep the output cadence by re-sending stale content
			frame = cloneFrame(p.lastGood)
			p.framesDuplicated++
			log.Debug().Err(err).Msg("Frame read failed, duplicating last good frame")
		} else {
			p.lastGood = cloneFrame(frame)
		}

		if p.deps.Transform != nil {
			p.deps.Transform.Apply(frame)
		}
		if p.deps.Tap != nil {
			p.deps.Tap(frame)
		}

		data, err := p.deps.Encode.Encode(frame)
		if err != nil {
			// Recoverable per-frame error, not a reconnection trigger
			log.Warn().Err(err).Msg("Frame encode failed, dropping frame")
			continue
		}

		if err := p.deps.Session.Send(ctx, data); err != nil {
			return fmt.Errorf("frame send failed: %w", err)
		}

		p.framesSent++
		p.lastEmit = p.now()
		p.maybeReport(p.lastEmit)
	}
}

// maybeReport flushes throughput counters once per reporting window
func (p *Pump) maybeReport(now time.Time) {
	window := now.Sub(p.windowStart)
	if window < p.cfg.ReportEvery {
		return
	}
	p.deps.Reporter.Report(Stats{
		FramesSent:       p.framesSent,
		FramesDuplicated: p.framesDuplicated,
		Window:           window,
	})
	p.framesSent = 0
	p.framesDuplicated = 0
	p.windowStart = now
}

// cloneFrame deep-copies a frame so the retained copy never aliases the
// frame currently being transformed or encoded
func cloneFrame(img *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    append([]uint8(nil), img.Pix...),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
