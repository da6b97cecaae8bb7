package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"anomaly-dashboard/internal/config"
	"anomaly-dashboard/internal/middleware"
	"anomaly-dashboard/internal/observability"
	"anomaly-dashboard/internal/server"
	"anomaly-dashboard/internal/services"
	"anomaly-dashboard/internal/textgen"
	"anomaly-dashboard/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	dashboardTitle = "Sales Data Anomaly Detection with AI-Generated Comments"
)

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := templates.Dashboard(dashboardTitle).Render(ctx, w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

func newPipeline(cfg *config.Config, logger *slog.Logger) (*services.Pipeline, error) {
	var rng *rand.Rand
	if cfg.Pipeline.Seed != 0 {
		rng = rand.New(rand.NewPCG(cfg.Pipeline.Seed, cfg.Pipeline.Seed))
	}
	synthesizer := services.NewSynthesizer(services.SynthesizerConfig{
		BatchSize:    cfg.Pipeline.BatchSize,
		AnomalyCount: cfg.Pipeline.AnomalyCount,
		StartDate:    cfg.Pipeline.StartDate,
		Days:         cfg.Pipeline.Days,
		Multiplier:   services.DefaultAnomalyMultiplier,
	}, rng)

	gen, err := textgen.New(cfg.TextGen, logger)
	if err != nil {
		return nil, err
	}

	explainerCfg := services.ExplainerConfig{
		MaxLength: cfg.TextGen.MaxLength,
		Workers:   cfg.TextGen.Workers,
	}
	if cfg.TextGen.FailurePolicy == config.FailurePlaceholder {
		explainerCfg.Placeholder = cfg.TextGen.Placeholder
	}
	explainer := services.NewExplainer(gen, explainerCfg, logger)

	return services.NewPipeline(synthesizer, explainer, logger), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"textgen_provider", cfg.TextGen.Provider,
		"batch_size", cfg.Pipeline.BatchSize,
		"anomaly_count", cfg.Pipeline.AnomalyCount,
	)

	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if cfg.Pipeline.RunOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout)
		if _, err := pipeline.Run(ctx, nil); err != nil {
			// The dashboard can start another run; an empty first page is fine.
			logger.Warn("initial pipeline run failed", "error", err)
		}
		cancel()
	}

	srv := server.NewServer(pipeline, logger, cfg.Pipeline.RunTimeout, &server.TemplateHandlers{
		Dashboard: handleDashboard,
	})

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.RateLimit(middleware.NewRateLimiter(cfg.Security), logger),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)
	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		if pipeline.Cancel() {
			logger.Info("cancelled in-flight pipeline run")
		}
		return nil
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
