package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const metricsNamespace = "congress_ingest"

// Metrics are the counters of one coordinator. Each coordinator owns its
// registry so batch runs can write a textfile for node_exporter.
type Metrics struct {
	reg       *prometheus.Registry
	artifacts *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	runs      *prometheus.CounterVec
}

// NewMetrics registers the ingestion collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "artifacts_total",
			Help:      "Artifacts handled, by kind, status and write outcome.",
		}, []string{"kind", "status", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Failed artifacts by kind and error kind.",
		}, []string{"kind", "error_kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_duration_seconds",
			Help:      "Time spent on one artifact from readiness to record.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"kind"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by final status.",
		}, []string{"status"}),
	}
	m.reg.MustRegister(m.artifacts, m.failures, m.duration, m.runs)
	return m
}

// Registry exposes the collectors for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WriteTextfile writes the current values in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "ingest: write metrics textfile %s", path)
	}
	return nil
}
