package preview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/framecast/framecast/internal/logger"
)

const (
	// Preview is a local debugging aid, not the delivery path, so the
	// JPEG quality is fixed rather than configurable
	jpegQuality = 90

	// clientBuffer frames are held per client; slow clients drop frames
	// instead of stalling the pipeline
	clientBuffer = 2
)

// Server exposes the producer's outgoing frames as a local MJPEG stream
// so the overlay and encoding path can be inspected in a browser without
// going through the broker. Frames are observed after annotation.
type Server struct {
	router *mux.Router

	mu         sync.RWMutex
	clients    map[chan []byte]struct{}
	lastFrame  []byte
	frameCount uint64
	startTime  time.Time
}

// NewServer creates the preview server. WriteFrame may be called before
// Start; frames are buffered for clients that connect later.
func NewServer() *Server {
	s := &Server{
		router:    mux.NewRouter(),
		clients:   make(map[chan []byte]struct{}),
		startTime: time.Now(),
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/stream", s.handleStream).Methods("GET")
	s.router.HandleFunc("/statusz", s.handleStatus).Methods("GET")
	return s
}

// Start blocks serving HTTP on the given address
func (s *Server) Start(addr string) error {
	logger.WithComponent("preview").Info().
		Str("addr", addr).
		Msg("Preview server listening")
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// WriteFrame encodes one frame to JPEG and fans it out to connected
// clients. A client whose buffer is full skips the frame.
func (s *Server) WriteFrame(frame *image.RGBA) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		logger.WithComponent("preview").Warn().
			Err(err).
			Msg("Preview frame encode failed")
		return
	}
	data := buf.Bytes()

	s.mu.Lock()
	s.lastFrame = data
	s.frameCount++
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
		}
	}
	s.mu.Unlock()
}

// handleStream serves the multipart MJPEG stream until the client
// disconnects
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "close")

	ch := make(chan []byte, clientBuffer)

	s.mu.Lock()
	s.clients[ch] = struct{}{}
	// seed the new client with the most recent frame
	if s.lastFrame != nil {
		ch <- s.lastFrame
	}
	count := len(s.clients)
	s.mu.Unlock()

	logger.WithComponent("preview").Debug().
		Int("clients", count).
		Msg("Preview client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		count := len(s.clients)
		s.mu.Unlock()
		logger.WithComponent("preview").Debug().
			Int("clients", count).
			Msg("Preview client disconnected")
	}()

	flusher, _ := w.(http.Flusher)
	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FrameCast - Preview</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="Outgoing frames">
</body>
</html>
`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	frames := s.frameCount
	clients := len(s.clients)
	s.mu.RUnlock()

	uptime := time.Since(s.startTime)
	var fps float64
	if secs := uptime.Seconds(); secs > 0 {
		fps = float64(frames) / secs
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"frames":  frames,
		"clients": clients,
		"fps":     fps,
		"uptime":  uptime.Round(time.Second).String(),
	})
}
