package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/framecast/framecast/internal/logger"
)

const (
	httpRequestTimeout = 10 * time.Second
	idleConnTimeout    = 90 * time.Second
)

// HTTPSession sends each frame as a discrete POST over a single reused
// keep-alive connection, negotiating HTTP/2 when the endpoint supports it
type HTTPSession struct {
	client      *http.Client
	ingestURL   string
	healthURL   string
	contentType string
}

// NewHTTPSession creates the streamed-request session. The underlying
// client holds exactly one idle connection so every send reuses it.
func NewHTTPSession(opts Options) *HTTPSession {
	base := strings.TrimRight(opts.BrokerURL, "/")

	return &HTTPSession{
		client: &http.Client{
			Timeout: httpRequestTimeout,
			Transport: &http.Transport{
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        1,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     idleConnTimeout,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !opts.VerifyTLS,
				},
			},
		},
		ingestURL:   base + "/ingest/" + opts.StreamID,
		healthURL:   base + "/health",
		contentType: opts.ContentType,
	}
}

// Connect probes the broker's health endpoint to confirm reachability.
// Any HTTP response counts; only a transport-level failure is an error.
func (s *HTTPSession) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	drain(resp)

	logger.WithComponent("transport").Info().
		Str("url", s.ingestURL).
		Str("proto", resp.Proto).
		Msg("Connected to broker")
	return nil
}

// Send posts one encoded frame. Status 200 (delivered) and 202 (accepted
// with no active consumer) both count as success.
func (s *HTTPSession) Send(ctx context.Context, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ingestURL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("failed to build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", s.contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("frame send failed: %w", err)
	}
	drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("broker returned status %d", resp.StatusCode)
	}
	return nil
}

// Close drops the idle connection
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// drain consumes and closes the response body so the connection can be
// reused
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
