package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/models"
	"anomaly-dashboard/internal/textgen"
)

const DefaultMaxLength = 100

var errEmptyExplanation = stderrors.New("generator returned an empty explanation")

type ExplainerConfig struct {
	MaxLength int
	// Workers bounds concurrent generation calls; 1 keeps calls sequential in
	// table order.
	Workers int
	// Placeholder, when set, replaces the explanation of a record whose
	// generation failed instead of failing the batch.
	Placeholder string
}

type Explainer struct {
	gen    textgen.Generator
	cfg    ExplainerConfig
	logger *slog.Logger
}

// ExplainedFunc observes each record as soon as its explanation is attached.
// pos is the record's position in the anomaly table. Calls are serialized.
type ExplainedFunc func(pos int, rec models.AnnotatedTransaction)

func NewExplainer(gen textgen.Generator, cfg ExplainerConfig, logger *slog.Logger) *Explainer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{gen: gen, cfg: cfg, logger: logger}
}

// BuildPrompt describes one anomalous record to the text generator.
func BuildPrompt(rec models.ScoredTransaction) string {
	var b strings.Builder
	b.WriteString("Explain why the following sales record is an anomaly:\n")
	fmt.Fprintf(&b, "Date: %s, Product: %s, Category: %s, Quantity Sold: %d, Sales Amount: $%s, Z-Score: %.2f.\n",
		rec.Date.Format(models.DateLayout),
		rec.ProductName,
		rec.Category,
		rec.QuantitySold,
		strconv.FormatFloat(rec.SalesAmount, 'f', -1, 64),
		rec.ZScore,
	)
	b.WriteString("Provide a plausible reason.")
	return b.String()
}

// Explain attaches one generated explanation to every record, calling the
// generator at most once per record. The result keeps the input order
// regardless of completion order. The first failure cancels outstanding calls
// and is returned as a GENERATION_FAILED error carrying the record key, unless
// a placeholder is configured.
func (e *Explainer) Explain(ctx context.Context, anomalies []models.ScoredTransaction, onExplained ExplainedFunc) ([]models.AnnotatedTransaction, error) {
	results := make([]models.AnnotatedTransaction, len(anomalies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	var mu sync.Mutex
	for i, rec := range anomalies {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			text, err := e.explainOne(gctx, rec)
			if err != nil {
				return err
			}

			annotated := models.AnnotatedTransaction{ScoredTransaction: rec, Explanation: text}
			results[i] = annotated

			if onExplained != nil {
				mu.Lock()
				onExplained(i, annotated)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Explainer) explainOne(ctx context.Context, rec models.ScoredTransaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := rec.Key()
	text, err := e.gen.Generate(ctx, BuildPrompt(rec), e.cfg.MaxLength)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyExplanation
	}
	if err == nil {
		return text, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	if e.cfg.Placeholder != "" {
		e.logger.Warn("explanation unavailable, using placeholder",
			"record", key.String(),
			"error", err,
		)
		return e.cfg.Placeholder, nil
	}

	e.logger.Error("explanation generation failed",
		"record", key.String(),
		"error", err,
	)
	return "", errors.Generation(key, err)
}
