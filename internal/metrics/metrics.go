// Package metrics counts run outcomes with Prometheus collectors on a
// private registry and exports them as a node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	reg *prometheus.Registry

	CasesTotal          *prometheus.CounterVec
	SegmentsTotal       *prometheus.CounterVec
	FramesWrittenTotal  prometheus.Counter
	DecodeFailuresTotal prometheus.Counter
	CaseDuration        prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		CasesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phasesplit_cases_total",
			Help: "Cases processed, by status",
		}, []string{"status"}),
		SegmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "phasesplit_segments_total",
			Help: "Output segments, by status",
		}, []string{"status"}),
		FramesWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "phasesplit_frames_written_total",
			Help: "Frames written to clips or stills",
		}),
		DecodeFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "phasesplit_decode_failures_total",
			Help: "Frames that could not be decoded",
		}),
		CaseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "phasesplit_case_duration_seconds",
			Help:    "Wall time spent per case",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
	}
}

// Registry exposes the collectors, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile writes the current values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
