// Package metrics exposes Prometheus counters and gauges for the
// timeline engine and export pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's Prometheus instruments on a private registry.
type Metrics struct {
	registry             *prometheus.Registry
	buildsStartedTotal   prometheus.Counter
	buildsSucceededTotal prometheus.Counter
	buildsFailedTotal    prometheus.Counter
	segmentsSkippedTotal prometheus.Counter
	exportJobsTotal      prometheus.Counter
	exportFailuresTotal  prometheus.Counter
	fallbackActive       prometheus.Gauge
	openSegments         prometheus.Gauge
}

// New creates and registers the agent's metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	buildsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_builds_started_total",
		Help: "Total number of composed timeline builds started",
	})
	buildsSucceededTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_builds_succeeded_total",
		Help: "Total number of composed timeline builds that produced a playable timeline",
	})
	buildsFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_builds_failed_total",
		Help: "Total number of composed timeline builds that degraded to sequential fallback",
	})
	segmentsSkippedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_segments_skipped_total",
		Help: "Total number of segments excluded from composition plans after probe failures",
	})
	exportJobsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_export_jobs_total",
		Help: "Total number of export jobs processed",
	})
	exportFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snapreel_export_failures_total",
		Help: "Total number of export jobs that failed",
	})
	fallbackActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapreel_fallback_active",
		Help: "1 while the open project is playing segments individually, 0 when composed",
	})
	openSegments := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snapreel_open_project_segments",
		Help: "Number of segments in the currently open project",
	})

	registry.MustRegister(
		buildsStartedTotal,
		buildsSucceededTotal,
		buildsFailedTotal,
		segmentsSkippedTotal,
		exportJobsTotal,
		exportFailuresTotal,
		fallbackActive,
		openSegments,
	)

	return &Metrics{
		registry:             registry,
		buildsStartedTotal:   buildsStartedTotal,
		buildsSucceededTotal: buildsSucceededTotal,
		buildsFailedTotal:    buildsFailedTotal,
		segmentsSkippedTotal: segmentsSkippedTotal,
		exportJobsTotal:      exportJobsTotal,
		exportFailuresTotal:  exportFailuresTotal,
		fallbackActive:       fallbackActive,
		openSegments:         openSegments,
	}
}

// IncBuildsStarted increments the builds started counter.
func (m *Metrics) IncBuildsStarted() {
	m.buildsStartedTotal.Inc()
}

// IncBuildsSucceeded increments the builds succeeded counter.
func (m *Metrics) IncBuildsSucceeded() {
	m.buildsSucceededTotal.Inc()
}

// IncBuildsFailed increments the builds failed counter.
func (m *Metrics) IncBuildsFailed() {
	m.buildsFailedTotal.Inc()
}

// AddSegmentsSkipped adds to the skipped segments counter.
func (m *Metrics) AddSegmentsSkipped(n int) {
	if n > 0 {
		m.segmentsSkippedTotal.Add(float64(n))
	}
}

// IncExportJobs increments the export jobs counter.
func (m *Metrics) IncExportJobs() {
	m.exportJobsTotal.Inc()
}

// IncExportFailures increments the export failures counter.
func (m *Metrics) IncExportFailures() {
	m.exportFailuresTotal.Inc()
}

// SetFallbackActive records whether fallback playback is in effect.
func (m *Metrics) SetFallbackActive(active bool) {
	if active {
		m.fallbackActive.Set(1)
	} else {
		m.fallbackActive.Set(0)
	}
}

// SetOpenSegments records the open project's segment count.
func (m *Metrics) SetOpenSegments(n int) {
	m.openSegments.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
