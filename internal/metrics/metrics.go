// Package metrics counts work done and skipped during a batch run.
//
// Counters live in a private Prometheus registry; at the end of a run they
// can be written to a node_exporter textfile so long-running batch jobs are
// observable without a scrape endpoint.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons used as label values.
const (
	ReasonMissingMatch  = "missing_match"
	ReasonNoObject      = "no_object"
	ReasonMissingAnchor = "missing_anchor"
	ReasonFileIO        = "file_io"
	ReasonDuplicate     = "duplicate"
	ReasonTooShort      = "too_short"
)

// Metrics holds the counters for one run.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed   *prometheus.CounterVec
	FramesSkipped     *prometheus.CounterVec
	SequencesSkipped  *prometheus.CounterVec
	SequencesComplete *prometheus.CounterVec
	RowsWritten       *prometheus.CounterVec
	Degenerate        *prometheus.CounterVec
}

// New creates and registers all counters.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "frames_processed_total",
			Help:      "Frames read and analysed, by stage.",
		}, []string{"stage"}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "frames_skipped_total",
			Help:      "Frames dropped, by stage and reason.",
		}, []string{"stage", "reason"}),
		SequencesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "sequences_skipped_total",
			Help:      "Sequences dropped as a whole, by stage and reason.",
		}, []string{"stage", "reason"}),
		SequencesComplete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "sequences_completed_total",
			Help:      "Sequences fully processed, by stage.",
		}, []string{"stage"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "rows_written_total",
			Help:      "CSV rows written, by output file.",
		}, []string{"file"}),
		Degenerate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "celltrack",
			Name:      "degenerate_detections_total",
			Help:      "Contours with zero moment area, by stage.",
		}, []string{"stage"}),
	}

	for _, c := range []prometheus.Collector{
		m.FramesProcessed, m.FramesSkipped, m.SequencesSkipped, m.SequencesComplete, m.RowsWritten, m.Degenerate,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FrameProcessed increments the processed-frame counter for stage.
func (m *Metrics) FrameProcessed(stage string) {
	if m == nil {
		return
	}
	m.FramesProcessed.WithLabelValues(stage).Inc()
}

// FrameSkipped increments the skipped-frame counter.
func (m *Metrics) FrameSkipped(stage, reason string) {
	if m == nil {
		return
	}
	m.FramesSkipped.WithLabelValues(stage, reason).Inc()
}

// SequenceSkipped increments the skipped-sequence counter.
func (m *Metrics) SequenceSkipped(stage, reason string) {
	if m == nil {
		return
	}
	m.SequencesSkipped.WithLabelValues(stage, reason).Inc()
}

// SequenceCompleted increments the completed-sequence counter.
func (m *Metrics) SequenceCompleted(stage string) {
	if m == nil {
		return
	}
	m.SequencesComplete.WithLabelValues(stage).Inc()
}

// Rows adds n to the rows-written counter for file.
func (m *Metrics) Rows(file string, n int) {
	if m == nil {
		return
	}
	m.RowsWritten.WithLabelValues(file).Add(float64(n))
}

// DegenerateDetection increments the degenerate-contour counter for stage.
func (m *Metrics) DegenerateDetection(stage string) {
	if m == nil {
		return
	}
	m.Degenerate.WithLabelValues(stage).Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
