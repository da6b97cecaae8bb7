package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anomaly-dashboard/internal/errors"
	"anomaly-dashboard/internal/models"
	"anomaly-dashboard/internal/services"
	"anomaly-dashboard/internal/textgen"
)

func checkSSEHeaders(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}

	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected cache-control 'no-cache', got %q", cc)
	}
}

func TestNewSSEHandlers(t *testing.T) {
	pipeline := createLoadedPipeline()
	handlers := NewSSEHandlers(pipeline, testLogger, time.Minute)

	if handlers == nil {
		t.Fatal("NewSSEHandlers() returned nil")
	}

	if handlers.pipeline != pipeline {
		t.Error("NewSSEHandlers() should set pipeline field")
	}

	if handlers.logger != testLogger {
		t.Error("NewSSEHandlers() should set logger field")
	}
}

func TestRenderScoredTable(t *testing.T) {
	html, err := renderScoredTable(createTestResult().Scored)
	if err != nil {
		t.Fatalf("renderScoredTable() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="scored-content">`,
		`<table class="modern-table">`,
		"<th>Date</th>",
		"<th>Product ID</th>",
		"<th>Sales Amount</th>",
		"<th>Z-Score</th>",
		"<th>Classification</th>",
		"2023-02-10",
		"1011",
		"Product_B",
		"9990.00",
		"2.31",
		`class="row-Anomaly"`,
		`class="row-Normal"`,
	}

	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}
}

func TestRenderScoredTable_LargeDataset(t *testing.T) {
	scored := make([]models.ScoredTransaction, maxTableRows+50)
	for i := range scored {
		scored[i] = models.ScoredTransaction{
			Transaction:    models.Transaction{ProductID: 1000 + i%20, SalesAmount: float64(100 + i)},
			Classification: models.Normal,
		}
	}

	html, err := renderScoredTable(scored)
	if err != nil {
		t.Fatalf("renderScoredTable() failed: %v", err)
	}

	if rowCount := strings.Count(html, `<tr class="row-`); rowCount != maxTableRows {
		t.Errorf("expected %d rows, got %d", maxTableRows, rowCount)
	}
}

func TestRenderAnomaliesTable(t *testing.T) {
	result := createTestResult()
	rows := append(result.Anomalies, models.AnnotatedTransaction{ScoredTransaction: result.Scored[0]})

	html, err := renderAnomaliesTable(rows)
	if err != nil {
		t.Fatalf("renderAnomaliesTable() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="anomalies-content">`,
		"<th>Explanation</th>",
		"A bulk order from a corporate customer.",
		"9990.00",
		"generating…",
	}

	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}
}

func TestRenderAnomaliesTable_EscapesExplanation(t *testing.T) {
	rows := []models.AnnotatedTransaction{{Explanation: "<script>alert(1)</script>"}}

	html, err := renderAnomaliesTable(rows)
	if err != nil {
		t.Fatalf("renderAnomaliesTable() failed: %v", err)
	}

	if strings.Contains(html, "<script>") {
		t.Error("generated text must be escaped")
	}
}

func TestRenderSummary(t *testing.T) {
	html, err := renderSummary(models.Summary{TotalRecords: 200, AnomalyCount: 5})
	if err != nil {
		t.Fatalf("renderSummary() failed: %v", err)
	}

	want := "In this dataset of <strong>200</strong> records, <strong>5</strong> anomalies were detected."
	if !strings.Contains(html, want) {
		t.Errorf("expected summary sentence, got %q", html)
	}
}

func TestLayoutChart(t *testing.T) {
	view, err := layoutChart(services.ChartPoints(createTestResult().Scored))
	if err != nil {
		t.Fatalf("layoutChart() failed: %v", err)
	}

	if len(view.Normal) != 2 || len(view.Anomalies) != 1 {
		t.Fatalf("expected 2 normal and 1 anomaly dots, got %d and %d", len(view.Normal), len(view.Anomalies))
	}
	if view.FirstDate != "2023-01-15" || view.LastDate != "2023-03-05" {
		t.Errorf("unexpected date range %s..%s", view.FirstDate, view.LastDate)
	}
	if view.MaxAmount != 9990 {
		t.Errorf("expected max amount 9990, got %v", view.MaxAmount)
	}

	if view.Normal[0].X != chartLeft || view.Normal[1].X != chartRight {
		t.Errorf("expected first and last dates on the plot edges, got %v and %v", view.Normal[0].X, view.Normal[1].X)
	}
	anomaly := view.Anomalies[0]
	if anomaly.Y != chartTop {
		t.Errorf("expected the largest amount at the top, got y=%v", anomaly.Y)
	}
	if anomaly.X <= chartLeft || anomaly.X >= chartRight {
		t.Errorf("expected anomaly inside the plot, got x=%v", anomaly.X)
	}
	if view.Normal[0].Y <= anomaly.Y || view.Normal[0].Y >= chartBottom {
		t.Errorf("expected normal amount between the axes, got y=%v", view.Normal[0].Y)
	}
	if anomaly.Label != "2023-02-10 $9990.00 (Anomaly)" {
		t.Errorf("unexpected label %q", anomaly.Label)
	}
}

func TestLayoutChart_SingleDate(t *testing.T) {
	points := []models.ChartPoint{
		{Date: "2023-04-01", SalesAmount: 100, Classification: models.Normal},
		{Date: "2023-04-01", SalesAmount: 50, Classification: models.Normal},
	}

	view, err := layoutChart(points)
	if err != nil {
		t.Fatalf("layoutChart() failed: %v", err)
	}

	center := float64(chartLeft+chartRight) / 2
	for _, dot := range view.Normal {
		if dot.X != center {
			t.Errorf("expected dot centered at %v, got %v", center, dot.X)
		}
	}
}

func TestLayoutChart_BadDate(t *testing.T) {
	if _, err := layoutChart([]models.ChartPoint{{Date: "not-a-date"}}); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestRenderChart(t *testing.T) {
	html, err := renderChart(createTestResult().Scored)
	if err != nil {
		t.Fatalf("renderChart() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="chart-content">`,
		"<svg",
		"2023-01-15",
		"2023-03-05",
		"$9990",
		"2023-02-10 $9990.00 (Anomaly)",
	}
	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}

	if n := strings.Count(html, `<circle class="dot-Anomaly"`); n != 1 {
		t.Errorf("expected 1 anomaly dot, got %d", n)
	}
	if n := strings.Count(html, `<circle class="dot-Normal"`); n != 2 {
		t.Errorf("expected 2 normal dots, got %d", n)
	}
}

func TestRenderCategories(t *testing.T) {
	html, err := renderCategories(createTestResult().Scored)
	if err != nil {
		t.Fatalf("renderCategories() failed: %v", err)
	}

	expectedContent := []string{
		`<div id="categories-content">`,
		"<th>Anomalies</th>",
		"Electronics",
		"$9990.00",
		"Furniture",
		"Clothing",
	}
	for _, content := range expectedContent {
		if !strings.Contains(html, content) {
			t.Errorf("expected HTML to contain %q", content)
		}
	}

	if strings.Index(html, "Electronics") > strings.Index(html, "Clothing") {
		t.Error("expected categories ordered by total sales")
	}
}

func TestSSEHandlers_HandleRefreshAll(t *testing.T) {
	handlers := NewSSEHandlers(createLoadedPipeline(), testLogger, 0)

	w := httptest.NewRecorder()
	handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil))

	checkSSEHeaders(t, w)

	body := w.Body.String()
	expectedContent := []string{
		"scored-content",
		"anomalies-content",
		"summary-content",
		"chart-content",
		"categories-content",
		`class="dot-Anomaly"`,
		"A bulk order from a corporate customer.",
	}
	for _, content := range expectedContent {
		if !strings.Contains(body, content) {
			t.Errorf("expected SSE stream to contain %q", content)
		}
	}
}

func TestSSEHandlers_HandleRefreshAll_NoRun(t *testing.T) {
	handlers := NewSSEHandlers(createTestPipeline(stubGenerator()), testLogger, 0)

	w := httptest.NewRecorder()
	handlers.HandleRefreshAll(w, httptest.NewRequest(http.MethodGet, "/sse/refresh-all", nil))

	checkSSEHeaders(t, w)

	if body := w.Body.String(); !strings.Contains(body, noRunMessage) {
		t.Errorf("expected idle status message, got %q", body)
	}
}

func TestSSEHandlers_HandleRun(t *testing.T) {
	pipeline := createTestPipeline(stubGenerator())
	handlers := NewSSEHandlers(pipeline, testLogger, time.Minute)

	w := httptest.NewRecorder()
	handlers.HandleRun(w, httptest.NewRequest(http.MethodGet, "/sse/run", nil))

	checkSSEHeaders(t, w)

	result, ok := pipeline.Latest()
	if !ok {
		t.Fatal("expected run to complete")
	}

	body := w.Body.String()
	expectedContent := []string{
		"Generating explanations…",
		"row-Anomaly",
		"A bulk order from a corporate customer.",
		fmt.Sprintf("<strong>%d</strong> anomalies", result.Summary.AnomalyCount),
		"Run " + result.RunID + " complete",
	}
	for _, content := range expectedContent {
		if !strings.Contains(body, content) {
			t.Errorf("expected SSE stream to contain %q", content)
		}
	}

	// Scored table is streamed before any explanation lands.
	if strings.Index(body, "scored-content") > strings.Index(body, "A bulk order") {
		t.Error("expected scored table before explanations")
	}
}

func TestSSEHandlers_HandleRun_Failure(t *testing.T) {
	failing := textgen.GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		return "", stderrors.New("model unavailable")
	})
	pipeline := createTestPipeline(failing)
	handlers := NewSSEHandlers(pipeline, testLogger, time.Minute)

	w := httptest.NewRecorder()
	handlers.HandleRun(w, httptest.NewRequest(http.MethodGet, "/sse/run", nil))

	checkSSEHeaders(t, w)

	body := w.Body.String()
	if !strings.Contains(body, "Explanation failed for record") {
		t.Errorf("expected failure status naming the record, got %q", body)
	}
	if !strings.Contains(body, "status-error") {
		t.Error("expected error status class")
	}
	if _, ok := pipeline.Latest(); ok {
		t.Error("failed run must not produce a result")
	}
}

func TestSSEHandlers_HandleCancel_NoRun(t *testing.T) {
	handlers := NewSSEHandlers(createLoadedPipeline(), testLogger, 0)

	w := httptest.NewRecorder()
	handlers.HandleCancel(w, httptest.NewRequest(http.MethodPost, "/sse/cancel", nil))

	checkSSEHeaders(t, w)

	if !strings.Contains(w.Body.String(), "No run in progress") {
		t.Error("expected no-run status")
	}
}

func TestRunFailureMessage(t *testing.T) {
	key := models.RecordKey{Date: time.Date(2023, 1, 7, 0, 0, 0, 0, time.UTC), ProductID: 1011}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", context.Canceled, "Run cancelled"},
		{"timed out", fmt.Errorf("explain: %w", context.DeadlineExceeded), "Run timed out"},
		{"cancelled code", errors.Cancelled(context.Canceled), "Run cancelled"},
		{"timeout code", errors.Timeout(context.DeadlineExceeded), "Run timed out"},
		{"generation", errors.Generation(key, stderrors.New("boom")), "Explanation failed for record 2023-01-07#1011"},
		{"conflict", errors.Conflict("busy"), "A run is already in progress"},
		{"other", errors.DegenerateDistribution("zero variance"), "Run failed: DEGENERATE_DISTRIBUTION: zero variance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runFailureMessage(tt.err); got != tt.want {
				t.Errorf("runFailureMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
