package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"zapfile/internal/relay"
)

// Config carries everything the HTTP layer needs. The relay service owns
// the actual pipeline semantics; the server only translates HTTP.
type Config struct {
	Addr string // e.g. ":8000"

	Relay *relay.Service

	// MaxUploadBytes caps the request body as a transport-level guard.
	// The relay enforces the precise per-file limit during spooling.
	MaxUploadBytes int64

	// RateLimit requests per RateWindow per client IP. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

type Server struct {
	httpServer *http.Server
	limiter    *rateLimiter
}

func New(cfg Config) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("GET /metrics", GetMetrics().Handler())
	mux.Handle("POST /api/upload", cfg.uploadHandler())
	mux.Handle("GET /api/download/{hash}/check", cfg.checkHandler())
	mux.Handle("GET /api/download/{hash}", cfg.downloadHandler())

	// Wrap middleware: requestID -> logging -> security -> ratelimit -> gzip -> mux
	var handler http.Handler = mux
	handler = compressionMiddleware(handler)
	var limiter *rateLimiter
	if cfg.RateLimit > 0 {
		limiter = newRateLimiter(cfg.RateLimit, cfg.RateWindow)
		handler = limiter.middleware(handler)
	}
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{httpServer: s, limiter: limiter}
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the {"error": ...} body shared by all API errors.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
