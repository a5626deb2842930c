package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the extraction pipeline.
type Metrics struct {
	// Task execution
	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Requests
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	// Retrieval
	DocumentsRetrieved prometheus.Counter

	// Coverage of the most recent request
	CoveragePercentage prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the pipeline.
//
// sync.Once guards registration so repeated construction does not panic
// with a duplicate collector error.
//
// All metrics are prefixed with "pipeline_" for namespacing.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TasksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipeline_tasks_total",
					Help: "Total number of extraction tasks executed",
				},
				[]string{"type", "strategy", "confidence"},
			),

			TaskDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_task_duration_seconds",
					Help:    "Duration of extraction task execution in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"type"},
			),

			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipeline_requests_total",
					Help: "Total number of pipeline requests",
				},
				[]string{"status"}, // "ok" or "error"
			),

			RequestDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pipeline_request_duration_seconds",
					Help:    "Duration of full pipeline requests in seconds",
					Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
				},
			),

			DocumentsRetrieved: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "pipeline_documents_retrieved_total",
					Help: "Total number of documents retrieved for processing",
				},
			),

			CoveragePercentage: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "pipeline_coverage_percentage",
					Help: "Coverage percentage of the most recent request",
				},
			),
		}
	})
	return globalMetrics
}

// RecordTask records one completed extraction task.
func (m *Metrics) RecordTask(extractionType, strategy, confidence string, seconds float64) {
	m.TasksTotal.WithLabelValues(extractionType, strategy, confidence).Inc()
	m.TaskDuration.WithLabelValues(extractionType).Observe(seconds)
}

// RecordRequest records one completed pipeline request.
func (m *Metrics) RecordRequest(status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.RequestDuration.Observe(seconds)
}
