package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/threatintel-core/internal/dbpool"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/system/dbpool", s.handleDBPool)
	})

	return r
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth probes the pool and optional sinks. The pool decides the
// status code; a failing sink only degrades the report.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: make(map[string]string),
	}
	status := http.StatusOK

	if err := s.pool.HealthCheck(ctx); err != nil {
		s.logger.Warn("database health check failed", "error", err)
		resp.Components["database"] = poolErrorCode(err)
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		resp.Components["database"] = "ok"
	}

	for name, c := range map[string]Checker{"mqtt": s.mqtt, "influxdb": s.influx} {
		if c == nil {
			continue
		}
		if err := c.HealthCheck(ctx); err != nil {
			resp.Components[name] = "degraded"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Components[name] = "ok"
	}

	writeJSON(w, status, resp)
}

// handleDBPool returns the raw pool statistics snapshot. A closed pool
// answers 503.
func (s *Server) handleDBPool(w http.ResponseWriter, _ *http.Request) {
	stats := s.pool.Stats()
	if stats.Closed {
		writeUnavailable(w, dbpool.ErrPoolClosed, "database pool is closed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
