package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the combined database and provider probes.
const healthCheckTimeout = 20 * time.Second

// pinger checks database reachability. *pgxpool.Pool satisfies it.
type pinger interface {
	Ping(ctx context.Context) error
}

// connectionTester checks provider reachability.
type connectionTester interface {
	TestConnection(ctx context.Context) error
}

type healthHandler struct {
	db     pinger
	llm    connectionTester
	logger *slog.Logger
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	OpenAI    string `json:"openai"`
	Timestamp string `json:"timestamp"`
}

// check handles GET /health. Each dependency is probed independently;
// any failure degrades the overall status but the endpoint still
// answers 200 so probes can read the body.
func (h *healthHandler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Database:  "connected",
		OpenAI:    "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", "error", err)
		resp.Database = "disconnected"
		resp.Status = "degraded"
	}

	if err := h.llm.TestConnection(ctx); err != nil {
		h.logger.Warn("health check: provider unreachable", "error", err)
		resp.OpenAI = "disconnected"
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
