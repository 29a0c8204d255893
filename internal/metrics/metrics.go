// Package metrics records capture outcomes in a Prometheus registry that can
// be dumped to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/webcapture/internal/capture"
)

// Recorder implements capture.Recorder and ratelimit.DelayObserver.
type Recorder struct {
	registry *prometheus.Registry

	outcomes        *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	artifacts       *prometheus.CounterVec
	artifactBytes   *prometheus.CounterVec
	writeErrors     prometheus.Counter
	politenessDelay *prometheus.HistogramVec
}

// New builds a Recorder on a fresh registry.
func New() (*Recorder, error) {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors against reg.
func NewWithRegistry(reg *prometheus.Registry) (*Recorder, error) {
	r := &Recorder{
		registry: reg,
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webcapture_outcomes_total",
			Help: "Capture outcomes partitioned by site and kind.",
		}, []string{"site", "outcome"}),
		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webcapture_capture_duration_seconds",
			Help:    "Wall time per capture, partitioned by outcome kind.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webcapture_artifacts_written_total",
			Help: "Artifacts written partitioned by kind.",
		}, []string{"kind"}),
		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webcapture_artifact_bytes_total",
			Help: "Bytes written partitioned by artifact kind.",
		}, []string{"kind"}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webcapture_write_errors_total",
			Help: "Successful captures whose artifacts could not all be written.",
		}),
		politenessDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webcapture_politeness_delay_seconds",
			Help:    "Time spent waiting for the per-host rate limit.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
	}
	collectors := []prometheus.Collector{
		r.outcomes,
		r.captureDuration,
		r.artifacts,
		r.artifactBytes,
		r.writeErrors,
		r.politenessDelay,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	// Zero the outcome kinds so every run exports the full set.
	for _, kind := range capture.Kinds() {
		r.captureDuration.WithLabelValues(string(kind))
	}
	return r, nil
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveOutcome counts one capture.
func (r *Recorder) ObserveOutcome(outcome capture.Outcome) {
	kind := string(outcome.Kind)
	r.outcomes.WithLabelValues(SanitizeSite(outcome.Target.Domain), kind).Inc()
	r.captureDuration.WithLabelValues(kind).Observe(outcome.Duration.Seconds())
}

// ObserveArtifacts counts written artifacts.
func (r *Recorder) ObserveArtifacts(artifacts []capture.Artifact) {
	for _, a := range artifacts {
		r.artifacts.WithLabelValues(string(a.Kind)).Inc()
		r.artifactBytes.WithLabelValues(string(a.Kind)).Add(float64(a.Bytes))
	}
}

// ObserveWriteError counts a capture with at least one failed write.
func (r *Recorder) ObserveWriteError() {
	r.writeErrors.Inc()
}

// ObservePolitenessDelay records a rate limit wait.
func (r *Recorder) ObservePolitenessDelay(host string, delay time.Duration) {
	r.politenessDelay.WithLabelValues(SanitizeSite(host)).Observe(delay.Seconds())
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SanitizeSite reduces a URL or authority to a lowercase hostname.
// It returns "unknown" if none can be parsed.
func SanitizeSite(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
