package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framecast/framecast/internal/logger"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second

	defaultPingInterval = 15 * time.Second
	defaultPongWait     = 5 * time.Second
)

// WebSocketSession pushes each frame as one binary message over a single
// persistent full-duplex connection. Liveness is maintained by periodic
// ping probes; an unanswered probe fails the session.
type WebSocketSession struct {
	url       string
	verifyTLS bool

	pingInterval time.Duration
	pongWait     time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	lastPingAt time.Time

	// true while a ping has been written and its pong has not arrived;
	// cleared by the pong handler on the read goroutine
	pingPending atomic.Bool
}

// NewWebSocketSession creates the full-duplex session, mapping the broker
// URL scheme http→ws and https→wss
func NewWebSocketSession(opts Options) (*WebSocketSession, error) {
	u, err := url.Parse(opts.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL %s: %w", opts.BrokerURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported broker URL scheme %q", u.Scheme)
	}
	u.Path = "/ws/ingest/" + opts.StreamID

	return &WebSocketSession{
		url:          u.String(),
		verifyTLS:    opts.VerifyTLS,
		pingInterval: defaultPingInterval,
		pongWait:     defaultPongWait,
	}, nil
}

// Connect dials the broker and starts the read loop that services pong
// and close frames
func (s *WebSocketSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.closeLocked()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !s.verifyTLS,
		},
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.pingPending.Store(false)
	conn.SetPongHandler(func(string) error {
		s.pingPending.Store(false)
		return nil
	})

	// Control frames are only delivered while a read is pending
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.conn = conn
	s.lastPingAt = time.Now()

	logger.WithComponent("transport").Info().
		Str("url", s.url).
		Msg("Connected to broker over websocket")
	return nil
}

// Send writes one frame as a binary message, interleaving keepalive pings
func (s *WebSocketSession) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("websocket session not connected")
	}

	now := time.Now()
	if s.pingPending.Load() && now.Sub(s.lastPingAt) > s.pongWait {
		return fmt.Errorf("keepalive probe unanswered after %v", s.pongWait)
	}

	if now.Sub(s.lastPingAt) >= s.pingInterval {
		if err := s.conn.WriteControl(websocket.PingMessage, nil, now.Add(writeWait)); err != nil {
			return fmt.Errorf("keepalive probe failed: %w", err)
		}
		s.lastPingAt = now
		s.pingPending.Store(true)
	}

	s.conn.SetWriteDeadline(now.Add(writeWait))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("frame send failed: %w", err)
	}
	return nil
}

// Close sends a close frame best-effort and drops the connection
func (s *WebSocketSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *WebSocketSession) closeLocked() {
	if s.conn == nil {
		return
	}
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.conn.Close()
	s.conn = nil
}
