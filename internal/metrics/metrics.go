package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_dashboard_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_dashboard_pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	AnomaliesDetected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anomaly_dashboard_anomalies_detected",
			Help: "Number of anomalies flagged by the last successful run",
		},
	)

	TextGenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_dashboard_textgen_requests_total",
			Help: "Total number of text generation calls",
		},
		[]string{"provider", "status"},
	)

	TextGenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anomaly_dashboard_textgen_request_duration_seconds",
			Help:    "Text generation call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider"},
	)
)

const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
	StatusTimeout   = "timeout"
)
