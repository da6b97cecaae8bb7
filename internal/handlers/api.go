package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/observability"
	"anomaly-dashboard/internal/services"
)

const noRunMessage = "no pipeline run has completed yet"

type APIHandlers struct {
	pipeline   *services.Pipeline
	logger     *slog.Logger
	runTimeout time.Duration
}

func NewAPIHandlers(pipeline *services.Pipeline, logger *slog.Logger, runTimeout time.Duration) *APIHandlers {
	return &APIHandlers{
		pipeline:   pipeline,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

func (h *APIHandlers) latest(w http.ResponseWriter, r *http.Request) (*services.RunResult, bool) {
	result, ok := h.pipeline.Latest()
	if !ok {
		errors.WriteError(w, h.logger, errors.NotFound(noRunMessage), observability.GetRequestID(r.Context()))
	}
	return result, ok
}

func (h *APIHandlers) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	if result, ok := h.latest(w, r); ok {
		errors.WriteSuccess(w, result.Scored)
	}
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if result, ok := h.latest(w, r); ok {
		errors.WriteSuccess(w, result.Summary)
	}
}

func (h *APIHandlers) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	if result, ok := h.latest(w, r); ok {
		errors.WriteSuccess(w, result.Anomalies)
	}
}

func (h *APIHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	if result, ok := h.latest(w, r); ok {
		errors.WriteSuccess(w, services.ChartPoints(result.Scored))
	}
}

func (h *APIHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	if result, ok := h.latest(w, r); ok {
		errors.WriteSuccess(w, services.CategoryBreakdown(result.Scored))
	}
}

type runResponse struct {
	RunID   string `json:"run_id"`
	Summary any    `json:"summary"`
}

// HandleRun executes a pipeline run synchronously.
func (h *APIHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withOptionalTimeout(r, h.runTimeout)
	defer cancel()

	result, err := h.pipeline.Run(ctx, nil)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	errors.WriteSuccessWithStatus(w, http.StatusCreated, runResponse{
		RunID:   result.RunID,
		Summary: result.Summary,
	})
}

func (h *APIHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Cancel() {
		errors.WriteError(w, h.logger, errors.NotFound("no pipeline run in progress"), observability.GetRequestID(r.Context()))
		return
	}
	errors.WriteSuccess(w, map[string]bool{"cancelled": true})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.pipeline.Stats())
}
