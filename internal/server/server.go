package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anomaly-dashboard/internal/handlers"
	"anomaly-dashboard/internal/services"
)

type Server struct {
	pipeline    *services.Pipeline
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(pipeline *services.Pipeline, logger *slog.Logger, runTimeout time.Duration, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		pipeline:    pipeline,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(pipeline, logger, runTimeout),
		sseHandlers: handlers.NewSSEHandlers(pipeline, logger, runTimeout),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Output tables
	s.mux.HandleFunc("GET /api/transactions", s.apiHandlers.HandleTransactions)
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/anomalies", s.apiHandlers.HandleAnomalies)
	s.mux.HandleFunc("GET /api/chart", s.apiHandlers.HandleChart)
	s.mux.HandleFunc("GET /api/categories", s.apiHandlers.HandleCategories)

	// Runs
	s.mux.HandleFunc("POST /api/runs", s.apiHandlers.HandleRun)
	s.mux.HandleFunc("DELETE /api/runs/current", s.apiHandlers.HandleCancel)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
	s.mux.HandleFunc("GET /sse/run", s.sseHandlers.HandleRun)
	s.mux.HandleFunc("POST /sse/cancel", s.sseHandlers.HandleCancel)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
