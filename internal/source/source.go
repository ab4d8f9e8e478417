package source

import "image"

// Reader pulls frames from a live video source. Implementations own the
// underlying capture handle; Read returns the most recent available frame.
type Reader interface {
	// Read decodes one frame from the source
	Read() (*image.RGBA, error)

	// Close releases the capture handle
	Close() error
}

// Opener establishes a Reader for a source URL. The frame pump calls it
// on every (re)connection attempt.
type Opener func(url string) (Reader, error)
