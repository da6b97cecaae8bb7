package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/metrics"
	"anomaly-dashboard/internal/models"
	"anomaly-dashboard/internal/observability"
)

// RunResult is the output of one pipeline run: the full scored table, the
// annotated anomaly table and the summary pair.
type RunResult struct {
	RunID        string                        `json:"run_id"`
	StartedAt    time.Time                     `json:"started_at"`
	CompletedAt  time.Time                     `json:"completed_at"`
	Distribution Distribution                  `json:"distribution"`
	Injected     []int                         `json:"injected_indices"`
	Scored       []models.ScoredTransaction    `json:"scored"`
	Anomalies    []models.AnnotatedTransaction `json:"anomalies"`
	Summary      models.Summary                `json:"summary"`
}

type Stage string

const (
	StageSynthesized Stage = "synthesized"
	StageScored      Stage = "scored"
	StageExplained   Stage = "explained"
)

type ProgressEvent struct {
	RunID string
	Stage Stage
	// Set for StageScored.
	Scored  []models.ScoredTransaction
	Summary models.Summary
	// Set for StageExplained.
	Position  int
	Annotated models.AnnotatedTransaction
}

type ProgressFunc func(ProgressEvent)

// Pipeline runs Synthesizer → Scorer → Explainer and keeps the latest
// successful result for the presentation layer.
type Pipeline struct {
	synthesizer *Synthesizer
	explainer   *Explainer
	logger      *slog.Logger

	mu     sync.RWMutex
	latest *RunResult

	runMu     sync.Mutex
	cancelRun context.CancelFunc
	running   atomic.Bool

	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
}

func NewPipeline(synthesizer *Synthesizer, explainer *Explainer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		synthesizer: synthesizer,
		explainer:   explainer,
		logger:      logger,
	}
}

// SetResult installs a result as the latest run without executing the
// pipeline.
func (p *Pipeline) SetResult(result *RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = result
}

// Run executes one full pipeline run. Only one run may be in flight; a
// concurrent call fails with CONFLICT. A failed or cancelled run leaves the
// previous result in place.
func (p *Pipeline) Run(ctx context.Context, progress ProgressFunc) (*RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, errors.Conflict("a pipeline run is already in progress")
	}
	defer p.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	p.runMu.Lock()
	p.cancelRun = cancel
	p.runMu.Unlock()
	defer func() {
		p.runMu.Lock()
		p.cancelRun = nil
		p.runMu.Unlock()
		cancel()
	}()

	if progress == nil {
		progress = func(ProgressEvent) {}
	}

	start := time.Now()
	result, err := p.run(ctx, progress)
	metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.runsFailed.Add(1)
		err = errors.FromContext(err)
		switch {
		case errors.HasCode(err, errors.CodeCancelled):
			metrics.PipelineRunsTotal.WithLabelValues(metrics.StatusCancelled).Inc()
			p.logger.Info("pipeline run cancelled", "duration", time.Since(start))
		case errors.HasCode(err, errors.CodeTimeout):
			metrics.PipelineRunsTotal.WithLabelValues(metrics.StatusTimeout).Inc()
			p.logger.Warn("pipeline run timed out", "duration", time.Since(start))
		default:
			metrics.PipelineRunsTotal.WithLabelValues(metrics.StatusError).Inc()
			p.logger.Error("pipeline run failed", "error", err, "duration", time.Since(start))
		}
		return nil, err
	}

	p.runsCompleted.Add(1)
	metrics.PipelineRunsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	metrics.AnomaliesDetected.Set(float64(result.Summary.AnomalyCount))

	p.mu.Lock()
	p.latest = result
	p.mu.Unlock()

	p.logger.Info("pipeline run complete",
		"run_id", result.RunID,
		"records", result.Summary.TotalRecords,
		"anomalies", result.Summary.AnomalyCount,
		"duration", result.CompletedAt.Sub(result.StartedAt),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, progress ProgressFunc) (*RunResult, error) {
	result := &RunResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	span.SetTag("run_id", result.RunID)
	var err error
	defer func() { span.End(p.logger, err) }()

	_, synthSpan := observability.StartSpan(ctx, "pipeline.synthesize")
	batch, injected, err := p.synthesizer.Generate()
	synthSpan.End(p.logger, err)
	if err != nil {
		return nil, err
	}
	result.Injected = injected
	progress(ProgressEvent{RunID: result.RunID, Stage: StageSynthesized})

	_, scoreSpan := observability.StartSpan(ctx, "pipeline.score")
	result.Scored, result.Distribution, err = Score(batch)
	scoreSpan.End(p.logger, err)
	if err != nil {
		return nil, err
	}
	result.Summary = Summarize(result.Scored)
	progress(ProgressEvent{
		RunID:   result.RunID,
		Stage:   StageScored,
		Scored:  result.Scored,
		Summary: result.Summary,
	})

	p.logger.Info("batch scored",
		"run_id", result.RunID,
		"records", result.Summary.TotalRecords,
		"anomalies", result.Summary.AnomalyCount,
		"mean", result.Distribution.Mean,
		"std_dev", result.Distribution.StdDev,
	)

	explainCtx, explainSpan := observability.StartSpan(ctx, "pipeline.explain")
	result.Anomalies, err = p.explainer.Explain(explainCtx, Anomalies(result.Scored), func(pos int, rec models.AnnotatedTransaction) {
		progress(ProgressEvent{RunID: result.RunID, Stage: StageExplained, Position: pos, Annotated: rec})
	})
	explainSpan.End(p.logger, err)
	if err != nil {
		return nil, err
	}

	result.CompletedAt = time.Now()
	return result, nil
}

// Cancel stops the in-flight run, if any, and reports whether there was one.
func (p *Pipeline) Cancel() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancelRun == nil {
		return false
	}
	p.cancelRun()
	p.logger.Info("pipeline run cancellation requested")
	return true
}

func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) Latest() (*RunResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.latest != nil
}

func (p *Pipeline) Scored() []models.ScoredTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return nil
	}
	return p.latest.Scored
}

func (p *Pipeline) Anomalies() []models.AnnotatedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return nil
	}
	return p.latest.Anomalies
}

func (p *Pipeline) Summary() models.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return models.Summary{}
	}
	return p.latest.Summary
}

// ChartPoints returns amount-vs-date points colored by classification.
func (p *Pipeline) ChartPoints() []models.ChartPoint {
	return ChartPoints(p.Scored())
}

func ChartPoints(scored []models.ScoredTransaction) []models.ChartPoint {
	points := make([]models.ChartPoint, len(scored))
	for i, tx := range scored {
		points[i] = models.ChartPoint{
			Date:           tx.Date.Format(models.DateLayout),
			SalesAmount:    tx.SalesAmount,
			Classification: tx.Classification,
		}
	}
	return points
}

// Stats is used for monitoring.
func (p *Pipeline) Stats() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := map[string]any{
		"running":        p.running.Load(),
		"runs_completed": p.runsCompleted.Load(),
		"runs_failed":    p.runsFailed.Load(),
	}
	if p.latest != nil {
		stats["last_run_id"] = p.latest.RunID
		stats["last_completed"] = p.latest.CompletedAt
		stats["record_count"] = p.latest.Summary.TotalRecords
		stats["anomaly_count"] = p.latest.Summary.AnomalyCount
		stats["mean"] = p.latest.Distribution.Mean
		stats["std_dev"] = p.latest.Distribution.StdDev
	}
	return stats
}
