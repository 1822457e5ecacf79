package types

import (
	"fmt"
	"path/filepath"
)

// IdleLabel is the canonical label of synthesized gap intervals.
const IdleLabel = "Idle"

// PhaseInterval is one contiguous, inclusive frame range of a case's timeline.
type PhaseInterval struct {
	CaseID     string
	Label      string
	StartFrame int
	EndFrame   int

	// StartTime and EndTime are seconds; only meaningful when HasTime is set.
	StartTime float64
	EndTime   float64
	HasTime   bool

	// Synthetic marks intervals inserted to cover annotation gaps.
	Synthetic bool
}

// Frames returns the number of frames covered by the interval.
func (p PhaseInterval) Frames() int { return p.EndFrame - p.StartFrame + 1 }

type OutputSegment struct {
	CaseID     string
	Label      string
	Occurrence int
	StartFrame int
	EndFrame   int

	// BaseName is the file name without extension, e.g. Cataract101_ID0004_Incision_2.
	BaseName string
	Path     string
}

func (s OutputSegment) Frames() int { return s.EndFrame - s.StartFrame + 1 }

// StillPath returns the destination of one sampled frame of the segment.
func (s OutputSegment) StillPath(dir string, frame int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.%s", s.BaseName, frame, ext))
}

type SamplingPlan struct {
	Segment OutputSegment
	Frames  []int
}

type Frame struct {
	Index int
	Data  []byte
}

type StreamInfo struct {
	FPS         float64
	Width       int
	Height      int
	TotalFrames int
}

// Row is one record of an annotation table. Headerless tables key their
// values by zero-based column index ("0", "1", ...).
type Row struct {
	Line   int
	Values map[string]string
}

func (r Row) Get(key string) (string, bool) {
	v, ok := r.Values[key]
	return v, ok
}

type Table struct {
	Header []string
	Rows   []Row
}

// Segment statuses recorded in the manifest.
const (
	StatusWritten   = "written"
	StatusTruncated = "truncated"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusPlanned   = "planned"
	StatusResumed   = "resumed"
)

type Manifest struct {
	RunID      string         `json:"run_id"`
	Convention string         `json:"convention"`
	Mode       string         `json:"mode"`
	OutDir     string         `json:"out_dir"`
	Cases      []ManifestCase `json:"cases"`
}

type ManifestCase struct {
	CaseID     string            `json:"case_id"`
	Video      string            `json:"video"`
	Annotation string            `json:"annotation"`
	FPS        float64           `json:"fps,omitempty"`
	Frames     int               `json:"total_frames,omitempty"`
	Status     string            `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Segments   []ManifestSegment `json:"segments"`
}

type ManifestSegment struct {
	Label         string   `json:"label"`
	Occurrence    int      `json:"occurrence"`
	StartFrame    int      `json:"start_frame"`
	EndFrame      int      `json:"end_frame"`
	File          string   `json:"file,omitempty"`
	Stills        []string `json:"stills,omitempty"`
	FramesWritten int      `json:"frames_written"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
}
