package pump

import (
	"time"

	"github.com/framecast/framecast/internal/logger"
)

// Stats is one reporting window's throughput snapshot
type Stats struct {
	FramesSent       uint64
	FramesDuplicated uint64
	Window           time.Duration
}

// FPS returns the achieved output rate over the window
func (s Stats) FPS() float64 {
	if s.Window <= 0 {
		return 0
	}
	return float64(s.FramesSent) / s.Window.Seconds()
}

// DuplicateRatio returns the share of emitted frames that were duplicates
// of the last good frame
func (s Stats) DuplicateRatio() float64 {
	if s.FramesSent == 0 {
		return 0
	}
	return float64(s.FramesDuplicated) / float64(s.FramesSent)
}

// Reporter receives the periodic throughput snapshot
type Reporter interface {
	Report(s Stats)
}

// LogReporter emits stats to the structured log
type LogReporter struct{}

// NewLogReporter creates the default reporter
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

// Report logs one window's throughput
func (r *LogReporter) Report(s Stats) {
	logger.WithComponent("pump").Info().
		Float64("fps", s.FPS()).
		Uint64("frames_sent", s.FramesSent).
		Uint64("frames_duplicated", s.FramesDuplicated).
		Float64("duplicate_ratio", s.DuplicateRatio()).
		Msg("Streaming throughput")
}
