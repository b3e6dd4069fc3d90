// Package api is the JSON HTTP interface: document management, the
// RAG query endpoint, conversation history and the health check.
package api

import (
	"errors"
	"log/slog"
	"net/http"
)

// ServerConfig contains the dependencies and settings for the server.
type ServerConfig struct {
	Logger        *slog.Logger
	RAG           ragService        // Required
	Documents     documentStore     // Required
	Conversations conversationStore // Required
	DB            pinger            // Required: health check database probe
	LLM           connectionTester  // Required: health check provider probe
	TrustProxy    bool              // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst     int               // Rate limiter burst size per IP (0 = default 60)
}

// ragService combines the two pipeline operations the handlers use.
type ragService interface {
	ingester
	querier
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.RAG == nil {
		return nil, errors.New("rag service is required")
	}
	if cfg.Documents == nil || cfg.Conversations == nil {
		return nil, errors.New("document and conversation stores are required")
	}
	if cfg.DB == nil || cfg.LLM == nil {
		return nil, errors.New("health check probes are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dh := &documentHandler{store: cfg.Documents, rag: cfg.RAG, logger: logger}
	ch := &conversationHandler{rag: cfg.RAG, store: cfg.Conversations, logger: logger}
	hh := &healthHandler{db: cfg.DB, llm: cfg.LLM, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/documents", dh.create)
	mux.HandleFunc("GET /api/v1/documents", dh.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", dh.get)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", dh.delete)

	mux.HandleFunc("POST /api/v1/conversations/messages", ch.sendMessage)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.get)

	// Rate limiter: per-IP token bucket (1 token/sec refill).
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so monitoring traffic
	// is never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", hh.check)
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
