/**
 * Prometheus collectors for the scan pipeline
 *
 * All methods are nil-safe so components can run without metrics (CLI, tests).
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prospect_worker"

// Metrics holds the worker's collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	scansTotal         *prometheus.CounterVec
	scanDuration       prometheus.Histogram
	stageTransitions   *prometheus.CounterVec
	recognitionTotal   *prometheus.CounterVec
	recognitionLatency prometheus.Histogram
	prospectsFound     prometheus.Histogram
	statusWriteErrors  prometheus.Counter
}

// New creates a registry with the pipeline collectors plus Go/process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans finished, by terminal status.",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a scan from submission to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "State machine transitions, by target state.",
		}, []string{"stage"}),
		recognitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_total",
			Help:      "Per-image recognition calls, by outcome.",
		}, []string{"outcome"}),
		recognitionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_duration_seconds",
			Help:      "Latency of a single recognition call.",
			Buckets:   prometheus.DefBuckets,
		}),
		prospectsFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prospects_per_scan",
			Help:      "Prospects produced by completed scans.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		statusWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_write_errors_total",
			Help:      "Status store writes that failed.",
		}),
	}

	m.registry.MustRegister(
		m.scansTotal,
		m.scanDuration,
		m.stageTransitions,
		m.recognitionTotal,
		m.recognitionLatency,
		m.prospectsFound,
		m.statusWriteErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveTransition(stage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(stage).Inc()
}

// ObserveRecognition records one recognition call. outcome is "ok" or "error".
func (m *Metrics) ObserveRecognition(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.recognitionTotal.WithLabelValues(outcome).Inc()
	m.recognitionLatency.Observe(d.Seconds())
}

// ObserveScan records a finished scan
func (m *Metrics) ObserveScan(status string, d time.Duration, prospects int) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(status).Inc()
	m.scanDuration.Observe(d.Seconds())
	if status == "completed" {
		m.prospectsFound.Observe(float64(prospects))
	}
}

func (m *Metrics) StatusWriteFailed() {
	if m == nil {
		return
	}
	m.statusWriteErrors.Inc()
}
