// Package convention describes annotation conventions as data and turns a
// case's rows into its canonical timeline.
package convention

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/phasesplit/internal/domain/timeline"
	"github.com/forPelevin/phasesplit/internal/domain/vocabulary"
	"github.com/forPelevin/phasesplit/internal/types"
)

// Shape is the structure of a convention's annotation rows.
type Shape string

const (
	// Intervals rows carry an explicit start and end.
	Intervals Shape = "intervals"
	// Events rows carry only a start; the end is inferred from the next row.
	Events Shape = "events"
	// FrameStream has one row per video frame.
	FrameStream Shape = "framestream"
)

// Layout is how annotation files relate to videos on disk.
type Layout string

const (
	// PerCase: one annotation file per case somewhere under the annotation dir.
	PerCase Layout = "per-case"
	// Master: one table holding every case, grouped by the case field.
	Master Layout = "master"
	// Sidecar: annotation named after the video stem.
	Sidecar Layout = "sidecar"
)

// Fields names the table columns a convention reads.
type Fields struct {
	Case      string `yaml:"case"`
	Label     string `yaml:"label"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

type Convention struct {
	Name      string `yaml:"name"`
	Tag       string `yaml:"tag"`
	Shape     Shape  `yaml:"shape"`
	Layout    Layout `yaml:"layout"`
	Delimiter string `yaml:"delimiter"`
	Header    bool   `yaml:"header"`
	Fields    Fields `yaml:"fields"`

	// AnnotationSuffix selects annotation files (PerCase, Sidecar).
	AnnotationSuffix string `yaml:"annotation_suffix"`
	// CaseFromStem uses the whole video stem as case id instead of case_<n>.
	CaseFromStem bool `yaml:"case_from_stem"`
	// UseTime converts the time columns to frames instead of reading frame columns.
	UseTime bool `yaml:"use_time"`

	Vocabulary string            `yaml:"vocabulary"`
	Overrides  map[string]string `yaml:"overrides"`

	labels vocabulary.Table
}

// Normalize maps a raw label through the convention's vocabulary.
func (c *Convention) Normalize(raw string) string {
	if c.labels == nil {
		return c.resolveLabels().Normalize(raw)
	}
	return c.labels.Normalize(raw)
}

// Prepared returns a copy with its vocabulary resolved.
func (c Convention) Prepared() *Convention {
	c.labels = c.resolveLabels()
	return &c
}

func (c *Convention) resolveLabels() vocabulary.Table {
	t, ok := vocabulary.Lookup(c.Vocabulary)
	if !ok {
		t = vocabulary.Identity
	}
	if len(c.Overrides) > 0 {
		t = t.Merge(c.Overrides)
	}
	return t
}

// Comma returns the field delimiter as a rune.
func (c *Convention) Comma() rune {
	if c.Delimiter == "" {
		return ','
	}
	if c.Delimiter == `\t` {
		return '\t'
	}
	return []rune(c.Delimiter)[0]
}

func (c *Convention) Validate() error {
	var problems []string
	if c.Name == "" {
		problems = append(problems, "name is required")
	}
	if c.Tag == "" {
		problems = append(problems, "tag is required")
	}
	switch c.Shape {
	case Intervals:
		if !c.UseTime && (c.Fields.Start == "" || c.Fields.End == "") {
			problems = append(problems, "intervals need start and end fields")
		}
		if c.UseTime && (c.Fields.StartTime == "" || c.Fields.EndTime == "") {
			problems = append(problems, "time-based intervals need start_time and end_time fields")
		}
	case Events, FrameStream:
		if c.Fields.Start == "" && !c.UseTime {
			problems = append(problems, "start field is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown shape %q", c.Shape))
	}
	if c.Fields.Label == "" {
		problems = append(problems, "label field is required")
	}
	switch c.Layout {
	case PerCase, Sidecar:
		if c.AnnotationSuffix == "" {
			problems = append(problems, "annotation_suffix is required for "+string(c.Layout))
		}
	case Master:
		if c.Fields.Case == "" {
			problems = append(problems, "master tables need a case field")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown layout %q", c.Layout))
	}
	if len(problems) > 0 {
		return fmt.Errorf("convention %q: %s", c.Name, strings.Join(problems, ", "))
	}
	return nil
}

// Timeline builds the gap-free intervals of one case from its rows.
func (c *Convention) Timeline(caseID string, rows []types.Row, info types.StreamInfo) ([]types.PhaseInterval, error) {
	if c.Shape == FrameStream {
		labels, err := c.Labels(rows)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", caseID, err)
		}
		if info.TotalFrames > 0 && len(labels) > info.TotalFrames {
			labels = labels[:info.TotalFrames]
		}
		return timeline.Compress(caseID, labels, info.FPS)
	}
	evs, err := c.Events(rows, info.FPS)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, err)
	}
	return timeline.Build(timeline.Input{
		CaseID:      caseID,
		Events:      evs,
		TotalFrames: info.TotalFrames,
		FPS:         info.FPS,
	})
}

// Events extracts normalized events from interval or event rows. fps is
// needed only by time-based conventions.
func (c *Convention) Events(rows []types.Row, fps float64) ([]timeline.Event, error) {
	if c.UseTime && fps <= 0 {
		return nil, fmt.Errorf("%w: time-based annotation needs the video frame rate", types.ErrMalformedAnnotation)
	}
	evs := make([]timeline.Event, 0, len(rows))
	for _, r := range rows {
		raw, ok := r.Get(c.Fields.Label)
		if !ok {
			return nil, missing(r, c.Fields.Label)
		}
		ev := timeline.Event{Label: c.Normalize(raw)}
		if c.UseTime {
			start, err := seconds(r, c.Fields.StartTime)
			if err != nil {
				return nil, err
			}
			ev.Start = timeline.SecondsToFrame(start, fps)
			ev.StartTime, ev.HasTime = start, true
			if c.Shape == Intervals {
				end, err := seconds(r, c.Fields.EndTime)
				if err != nil {
					return nil, err
				}
				// Time-based ends are exclusive: [sec, endsec).
				ev.End, ev.HasEnd = timeline.EndSecondsToFrame(end, fps, ev.Start), true
				ev.EndTime = end
			}
		} else {
			start, err := frame(r, c.Fields.Start)
			if err != nil {
				return nil, err
			}
			ev.Start = start
			if c.Shape == Intervals {
				end, err := frame(r, c.Fields.End)
				if err != nil {
					return nil, err
				}
				ev.End, ev.HasEnd = end, true
			}
			if c.Fields.StartTime != "" && c.Fields.EndTime != "" {
				st, err1 := seconds(r, c.Fields.StartTime)
				et, err2 := seconds(r, c.Fields.EndTime)
				if err1 == nil && err2 == nil {
					ev.StartTime, ev.EndTime, ev.HasTime = st, et, true
				}
			}
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// Labels extracts the normalized per-frame label stream. A headerless
// table whose first row has a non-numeric frame column is treated as
// having a header row.
func (c *Convention) Labels(rows []types.Row) ([]string, error) {
	if len(rows) > 0 && !c.Header && c.Fields.Start != "" {
		if v, _ := rows[0].Get(c.Fields.Start); !isNumber(v) {
			rows = rows[1:]
		}
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		raw, ok := r.Get(c.Fields.Label)
		if !ok {
			return nil, missing(r, c.Fields.Label)
		}
		out = append(out, c.Normalize(raw))
	}
	return out, nil
}

// GroupByCase splits master-table rows by the case field, preserving the
// row order within each case. Keys are returned in ascending order.
func (c *Convention) GroupByCase(rows []types.Row) (map[string][]types.Row, []string, error) {
	groups := make(map[string][]types.Row)
	for _, r := range rows {
		id, ok := r.Get(c.Fields.Case)
		if !ok || strings.TrimSpace(id) == "" {
			return nil, nil, missing(r, c.Fields.Case)
		}
		id = strings.TrimSpace(id)
		groups[id] = append(groups[id], r)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return groups, keys, nil
}

func missing(r types.Row, field string) error {
	return fmt.Errorf("%w: line %d: missing field %q", types.ErrMalformedAnnotation, r.Line, field)
}

func frame(r types.Row, field string) (int, error) {
	v, ok := r.Get(field)
	if !ok {
		return 0, missing(r, field)
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: line %d: field %q: %q is not a frame number", types.ErrMalformedAnnotation, r.Line, field, v)
	}
	return int(f), nil
}

func seconds(r types.Row, field string) (float64, error) {
	v, ok := r.Get(field)
	if !ok {
		return 0, missing(r, field)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%w: line %d: field %q: %q is not a time in seconds", types.ErrMalformedAnnotation, r.Line, field, v)
	}
	return f, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
