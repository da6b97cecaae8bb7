package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/models"
	"anomaly-dashboard/internal/services"
)

const maxTableRows = 250

var scoredTableTemplate = template.Must(template.New("scoredTable").Parse(`
<div id="scored-content">
<table class="modern-table">
<thead><tr><th>Date</th><th>Product ID</th><th>Product</th><th>Category</th><th>Quantity</th><th>Sales Amount</th><th>Z-Score</th><th>Classification</th></tr></thead>
<tbody>
{{range $i, $item := .Data}}{{if lt $i $.MaxRows}}<tr class="row-{{.Classification}}">
<td>{{.Date.Format "2006-01-02"}}</td>
<td>{{.ProductID}}</td>
<td>{{.ProductName}}</td>
<td><span class="category-badge">{{.Category}}</span></td>
<td>{{.QuantitySold}}</td>
<td>${{printf "%.2f" .SalesAmount}}</td>
<td>{{printf "%.2f" .ZScore}}</td>
<td>{{.Classification}}</td>
</tr>{{end}}{{end}}
</tbody>
</table>
</div>`))

var anomaliesTableTemplate = template.Must(template.New("anomaliesTable").Parse(`
<div id="anomalies-content">
<table class="modern-table">
<thead><tr><th>Date</th><th>Product ID</th><th>Product</th><th>Sales Amount</th><th>Z-Score</th><th>Explanation</th></tr></thead>
<tbody>
{{range .Data}}<tr>
<td>{{.Date.Format "2006-01-02"}}</td>
<td>{{.ProductID}}</td>
<td>{{.ProductName}}</td>
<td><strong>${{printf "%.2f" .SalesAmount}}</strong></td>
<td>{{printf "%.2f" .ZScore}}</td>
<td>{{if .Explanation}}{{.Explanation}}{{else}}<em>generating…</em>{{end}}</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var summaryTemplate = template.Must(template.New("summary").Parse(
	`<div id="summary-content">In this dataset of <strong>{{.TotalRecords}}</strong> records, <strong>{{.AnomalyCount}}</strong> anomalies were detected.</div>`))

var statusTemplate = template.Must(template.New("status").Parse(
	`<div id="run-status" class="status-{{.Class}}">{{.Message}}</div>`))

type SSEHandlers struct {
	pipeline   *services.Pipeline
	logger     *slog.Logger
	runTimeout time.Duration
}

func NewSSEHandlers(pipeline *services.Pipeline, logger *slog.Logger, runTimeout time.Duration) *SSEHandlers {
	return &SSEHandlers{
		pipeline:   pipeline,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

type templateData struct {
	Data    any
	MaxRows int
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

func renderScoredTable(scored []models.ScoredTransaction) (string, error) {
	return render(scoredTableTemplate, templateData{Data: scored, MaxRows: maxTableRows})
}

func renderAnomaliesTable(rows []models.AnnotatedTransaction) (string, error) {
	return render(anomaliesTableTemplate, templateData{Data: rows})
}

func renderSummary(summary models.Summary) (string, error) {
	return render(summaryTemplate, summary)
}

func renderStatus(class, message string) (string, error) {
	return render(statusTemplate, struct{ Class, Message string }{class, message})
}

// stream serializes writes to one SSE connection.
type stream struct {
	mu     sync.Mutex
	sse    *datastar.ServerSentEventGenerator
	w      http.ResponseWriter
	logger *slog.Logger
}

func newStream(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *stream {
	return &stream{sse: datastar.NewSSE(w, r), w: w, logger: logger}
}

func (s *stream) elements(html string, err error) {
	if err != nil {
		s.logger.Error("render fragment", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sse.PatchElements(html); err != nil {
		s.logger.Debug("patch elements", "error", err)
	}
	s.flush()
}

func (s *stream) signals(values map[string]any) {
	payload, err := json.Marshal(values)
	if err != nil {
		s.logger.Error("marshal signals", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sse.PatchSignals(payload); err != nil {
		s.logger.Debug("patch signals", "error", err)
	}
	s.flush()
}

func (s *stream) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *stream) result(result *services.RunResult) {
	s.elements(renderSummary(result.Summary))
	s.elements(renderScoredTable(result.Scored))
	s.elements(renderChart(result.Scored))
	s.elements(renderCategories(result.Scored))
	s.elements(renderAnomaliesTable(result.Anomalies))
	s.signals(map[string]any{"running": false})
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	s := newStream(w, r, h.logger)

	result, ok := h.pipeline.Latest()
	if !ok {
		s.elements(renderStatus("idle", noRunMessage))
		return
	}
	s.result(result)
}

// HandleRun starts a pipeline run and streams its progress: the scored table
// as soon as scoring finishes, then the anomaly table each time a record is
// explained. Closing the connection cancels the run.
func (h *SSEHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	s := newStream(w, r, h.logger)

	ctx, cancel := withOptionalTimeout(r, h.runTimeout)
	defer cancel()

	s.elements(renderStatus("running", "Generating transactions…"))
	s.signals(map[string]any{"running": true})

	var pending []models.AnnotatedTransaction
	result, err := h.pipeline.Run(ctx, func(ev services.ProgressEvent) {
		switch ev.Stage {
		case services.StageScored:
			anomalies := services.Anomalies(ev.Scored)
			pending = make([]models.AnnotatedTransaction, len(anomalies))
			for i, rec := range anomalies {
				pending[i] = models.AnnotatedTransaction{ScoredTransaction: rec}
			}
			s.elements(renderSummary(ev.Summary))
			s.elements(renderScoredTable(ev.Scored))
			s.elements(renderChart(ev.Scored))
			s.elements(renderCategories(ev.Scored))
			s.elements(renderAnomaliesTable(pending))
			s.elements(renderStatus("running", "Generating explanations…"))
		case services.StageExplained:
			pending[ev.Position] = ev.Annotated
			s.elements(renderAnomaliesTable(pending))
		}
	})
	if err != nil {
		s.elements(renderStatus("error", runFailureMessage(err)))
		s.signals(map[string]any{"running": false})
		return
	}

	s.result(result)
	s.elements(renderStatus("done", "Run "+result.RunID+" complete"))
}

func (h *SSEHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	s := newStream(w, r, h.logger)

	if !h.pipeline.Cancel() {
		s.elements(renderStatus("idle", "No run in progress"))
		return
	}
	s.elements(renderStatus("cancelled", "Cancelling run…"))
}

func runFailureMessage(err error) string {
	switch {
	case stderrors.Is(err, context.Canceled):
		return "Run cancelled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return "Run timed out"
	case errors.HasCode(err, errors.CodeGeneration):
		key, _ := errors.GenerationKey(err)
		return "Explanation failed for record " + key.String()
	case errors.HasCode(err, errors.CodeConflict):
		return "A run is already in progress"
	default:
		return "Run failed: " + err.Error()
	}
}

func withOptionalTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), timeout)
}
