package viewer

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/framecast/framecast/internal/logger"
)

// Server serves the stream viewer page. The page opens a WebSocket to the
// broker and renders incoming binary frames; the server itself never
// touches frame data.
type Server struct {
	router   *mux.Router
	wsURL    string
	streamID string
}

// NewServer creates a viewer server for one stream. brokerURL is the
// broker's HTTP base; the page derives the WebSocket endpoint from it.
func NewServer(brokerURL, streamID string) (*Server, error) {
	wsURL, err := brokerWSURL(brokerURL, streamID)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:   mux.NewRouter(),
		wsURL:    wsURL,
		streamID: streamID,
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	return s, nil
}

// Start blocks serving HTTP on the given address
func (s *Server) Start(addr string) error {
	logger.WithComponent("viewer").Info().
		Str("addr", addr).
		Str("ws_url", s.wsURL).
		Msg("Viewer server listening")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	viewerPage.Execute(w, struct {
		WSURL    string
		StreamID string
	}{s.wsURL, s.streamID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"stream": s.streamID,
	})
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// brokerWSURL maps the broker base URL to the viewer-side WebSocket
// endpoint for the stream
func brokerWSURL(brokerURL, streamID string) (string, error) {
	base := strings.TrimRight(brokerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	default:
		return "", fmt.Errorf("unsupported broker URL scheme in %s", brokerURL)
	}
	return base + "/ws/" + streamID, nil
}

var viewerPage = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FrameCast - {{.StreamID}}</title>
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
        .status {
            position: fixed;
            top: 12px;
            left: 12px;
            padding: 6px 12px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border-radius: 14px;
            font-family: monospace;
            font-size: 13px;
        }
        .status.live { color: #4ec9b0; }
        .status.down { color: #ce9178; }
    </style>
</head>
<body>
    <img id="frame" alt="Live stream">
    <div class="status down" id="status">connecting…</div>
    <script>
        const wsURL = {{.WSURL}};
        const img = document.getElementById('frame');
        const status = document.getElementById('status');
        let lastBlobURL = null;

        function connect() {
            const ws = new WebSocket(wsURL);
            ws.binaryType = 'blob';

            ws.onopen = () => {
                status.textContent = 'live';
                status.className = 'status live';
            };

            ws.onmessage = (event) => {
                const url = URL.createObjectURL(event.data);
                img.src = url;
                if (lastBlobURL) URL.revokeObjectURL(lastBlobURL);
                lastBlobURL = url;
            };

            ws.onclose = () => {
                status.textContent = 'reconnecting…';
                status.className = 'status down';
                setTimeout(connect, 3000);
            };

            ws.onerror = () => ws.close();
        }

        connect();
    </script>
</body>
</html>
`))
