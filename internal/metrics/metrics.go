// Package metrics exposes Prometheus counters for the analysis pipeline.
// Counters are per-process, not per-session; sessions are distinguished by
// the verdict label where it matters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline counters backed by a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FramesAnalyzed  prometheus.Counter
	AudioWindows    prometheus.Counter
	DetectorErrors  *prometheus.CounterVec
	Events          *prometheus.CounterVec
	EvidenceWritten prometheus.Counter
	EvidenceFailed  prometheus.Counter
	Sessions        *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctorlens_frames_analyzed_total",
			Help: "Sampled video frames run through the detector set.",
		}),
		AudioWindows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctorlens_audio_windows_total",
			Help: "Audio windows scored for speaker consistency.",
		}),
		DetectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctorlens_detector_errors_total",
			Help: "Detector failures that degraded a single frame or window.",
		}, []string{"detector"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctorlens_violation_events_total",
			Help: "Violation events emitted by the aggregator.",
		}, []string{"kind"}),
		EvidenceWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctorlens_evidence_written_total",
			Help: "Proof frames persisted to evidence storage.",
		}),
		EvidenceFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctorlens_evidence_failed_total",
			Help: "Evidence writes that failed; the event stays on the timeline.",
		}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctorlens_sessions_total",
			Help: "Completed sessions by final verdict.",
		}, []string{"verdict"}),
	}

	m.registry.MustRegister(
		m.FramesAnalyzed,
		m.AudioWindows,
		m.DetectorErrors,
		m.Events,
		m.EvidenceWritten,
		m.EvidenceFailed,
		m.Sessions,
	)
	return m
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
