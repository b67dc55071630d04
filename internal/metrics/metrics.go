// Package metrics exposes Prometheus instrumentation for probe runs
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/busybox42/mailprobe/internal/catalogue"
)

var (
	// Singleton metrics instance
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// Namespace prefixes every metric exported by the harness
const Namespace = "mailprobe"

// Metrics holds all Prometheus metrics for the submission harness
type Metrics struct {
	// Per-case submission metrics
	SubmissionAttempts  *prometheus.CounterVec
	SubmissionSuccesses *prometheus.CounterVec
	SubmissionFailures  *prometheus.CounterVec
	SubmissionDuration  prometheus.Histogram
	SubmissionSize      prometheus.Histogram

	// Run-level metrics
	RunsTotal          prometheus.Counter
	WatchCyclesSkipped prometheus.Counter
}

// Get returns the singleton metrics instance
func Get() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// newMetrics creates and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{
		SubmissionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: Namespace + "_submission_attempts_total",
			Help: "Total number of test case submissions attempted",
		}, []string{"category"}),
		SubmissionSuccesses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: Namespace + "_submission_successes_total",
			Help: "Total number of test cases accepted by the endpoint",
		}, []string{"category"}),
		SubmissionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: Namespace + "_submission_failures_total",
			Help: "Total number of failed submissions by failure kind",
		}, []string{"category", "kind"}),
		SubmissionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    Namespace + "_submission_duration_seconds",
			Help:    "Duration of individual test case submissions",
			Buckets: prometheus.DefBuckets,
		}),
		SubmissionSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    Namespace + "_submission_size_bytes",
			Help:    "Size of rendered test messages in bytes",
			Buckets: []float64{256, 512, 1024, 4 * 1024, 16 * 1024, 64 * 1024},
		}),
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: Namespace + "_runs_total",
			Help: "Total number of completed probe runs",
		}),
		WatchCyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: Namespace + "_watch_cycles_skipped_total",
			Help: "Probe cycles skipped while the endpoint circuit breaker was open",
		}),
	}

	// Initialize per-category series so dashboards see zeros before traffic
	for _, cat := range catalogue.Categories() {
		m.SubmissionAttempts.WithLabelValues(string(cat)).Add(0)
		m.SubmissionSuccesses.WithLabelValues(string(cat)).Add(0)
	}

	return m
}

// RecordSubmission accounts for one finished submission. An empty
// failureKind means the endpoint accepted the message.
func (m *Metrics) RecordSubmission(category string, size int, duration time.Duration, failureKind string) {
	m.SubmissionAttempts.WithLabelValues(category).Inc()
	m.SubmissionSize.Observe(float64(size))
	m.SubmissionDuration.Observe(duration.Seconds())

	if failureKind == "" {
		m.SubmissionSuccesses.WithLabelValues(category).Inc()
	} else {
		m.SubmissionFailures.WithLabelValues(category, failureKind).Inc()
	}
}

// RecordRun accounts for one completed probe run
func (m *Metrics) RecordRun() {
	m.RunsTotal.Inc()
}

// RecordSkippedCycle accounts for a watch cycle suppressed by the breaker
func (m *Metrics) RecordSkippedCycle() {
	m.WatchCyclesSkipped.Inc()
}

// Snapshot gathers the harness's metric families from the default registry,
// filtered to this namespace. The status endpoint renders these directly.
func Snapshot() ([]*dto.MetricFamily, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}

	var own []*dto.MetricFamily
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), Namespace+"_") {
			own = append(own, mf)
		}
	}
	return own, nil
}
