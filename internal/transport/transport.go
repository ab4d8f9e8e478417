package transport

import (
	"context"
	"fmt"

	"github.com/framecast/framecast/internal/config"
)

// Session manages one persistent connection to the ingestion endpoint.
// Connect may be called again after a failure to re-establish the session.
type Session interface {
	// Connect establishes or re-establishes the session
	Connect(ctx context.Context) error

	// Send delivers one encoded frame. An error indicates the session is
	// no longer usable and must be reconnected.
	Send(ctx context.Context, frame []byte) error

	// Close releases the connection
	Close() error
}

// Options carries the endpoint settings shared by all session types
type Options struct {
	BrokerURL   string
	StreamID    string
	ContentType string
	VerifyTLS   bool
}

// New constructs the session implementation selected by mode. An unknown
// mode is a configuration-level error, not a runtime one.
func New(mode string, opts Options) (Session, error) {
	switch mode {
	case config.TransportHTTP:
		return NewHTTPSession(opts), nil
	case config.TransportWebSocket:
		return NewWebSocketSession(opts)
	default:
		return nil, fmt.Errorf("unknown transport mode %q", mode)
	}
}
