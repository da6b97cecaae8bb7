package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anomaly-dashboard/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	logger.Info("pipeline run complete", "anomalies", 5)
	logger.Debug("hidden")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"pipeline run complete"`) || !strings.Contains(out, `"anomalies":5`) {
		t.Errorf("unexpected log output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestSpan_Nesting(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "pipeline.run")
	_, child := StartSpan(ctx, "pipeline.score")

	if child.TraceID != parent.TraceID {
		t.Error("child span should share the parent trace id")
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("child parent id = %q, want %q", child.ParentID, parent.SpanID)
	}
	if GetSpan(ctx) != parent {
		t.Error("context should carry the parent span")
	}
}

func TestSpan_End(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.LoggerConfig{Level: "debug", Format: "text"}))

	_, span := StartSpan(context.Background(), "pipeline.explain")
	span.End(logger, errors.New("generation failed"))

	if span.Status != SpanStatusError || span.Error != "generation failed" {
		t.Errorf("unexpected span state %+v", span)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("failed span should log at warn, got %q", buf.String())
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := GetRequestID(ctx); got != "req-42" {
		t.Errorf("GetRequestID() = %q, want req-42", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q", got)
	}
}
