// Package timeline turns annotation events and per-frame label streams into
// gap-free, sorted PhaseInterval sequences.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Event is one annotation row reduced to frame positions and a canonical label.
type Event struct {
	Label  string
	Start  int
	End    int
	HasEnd bool

	StartTime float64
	EndTime   float64
	HasTime   bool
}

type Input struct {
	CaseID string
	Events []Event

	// TotalFrames is the frame count of the case's video; 0 means unknown.
	// It is required when the last event has no explicit end.
	TotalFrames int

	// FPS derives the seconds of synthesized and inferred intervals; 0 leaves them untimed.
	FPS float64
}

// Build sorts the events, infers missing ends from the following event and
// fills every gap with an Idle interval. When TotalFrames is known the
// timeline is clipped to it and covers [0, TotalFrames-1] exactly.
func Build(in Input) ([]types.PhaseInterval, error) {
	if len(in.Events) == 0 {
		return nil, fmt.Errorf("%w: case %s has no rows", types.ErrMalformedAnnotation, in.CaseID)
	}
	evs := append([]Event(nil), in.Events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Start < evs[j].Start })

	last := in.TotalFrames - 1
	ivs := make([]types.PhaseInterval, 0, len(evs))
	for i, ev := range evs {
		if ev.Start < 0 {
			return nil, fmt.Errorf("%w: case %s: negative start frame %d", types.ErrMalformedAnnotation, in.CaseID, ev.Start)
		}
		end := ev.End
		if !ev.HasEnd {
			switch {
			case i+1 < len(evs):
				end = evs[i+1].Start - 1
			case in.TotalFrames > 0:
				end = last
			default:
				return nil, fmt.Errorf("%w: case %s: total frame count required to close the last phase", types.ErrMalformedAnnotation, in.CaseID)
			}
		}
		if in.TotalFrames > 0 {
			if ev.Start > last {
				break
			}
			if end > last {
				end = last
			}
		}
		if end < ev.Start {
			return nil, fmt.Errorf("%w: case %s: phase %q ends (%d) before it starts (%d)",
				types.ErrMalformedAnnotation, in.CaseID, ev.Label, end, ev.Start)
		}
		if n := len(ivs); n > 0 && ev.Start <= ivs[n-1].EndFrame {
			// Rows sharing their boundary frame hand it to the later phase.
			prev := &ivs[n-1]
			if ev.Start != prev.EndFrame || prev.StartFrame >= ev.Start {
				return nil, fmt.Errorf("%w: case %s: phase %q at frame %d overlaps %q ending at %d",
					types.ErrMalformedAnnotation, in.CaseID, ev.Label, ev.Start, prev.Label, prev.EndFrame)
			}
			prev.EndFrame = ev.Start - 1
		}
		iv := types.PhaseInterval{
			CaseID:     in.CaseID,
			Label:      ev.Label,
			StartFrame: ev.Start,
			EndFrame:   end,
		}
		if ev.HasTime && ev.HasEnd {
			iv.StartTime, iv.EndTime, iv.HasTime = ev.StartTime, ev.EndTime, true
		} else {
			stamp(&iv, in.FPS)
		}
		ivs = append(ivs, iv)
	}
	if len(ivs) == 0 {
		return nil, fmt.Errorf("%w: case %s: every phase starts after the last frame %d", types.ErrMalformedAnnotation, in.CaseID, last)
	}
	return FillGaps(ivs, in.TotalFrames, in.FPS), nil
}

// FillGaps inserts Idle intervals before the first interval, between
// non-adjacent intervals and, when totalFrames is known, after the last one.
// ivs must be sorted and non-overlapping.
func FillGaps(ivs []types.PhaseInterval, totalFrames int, fps float64) []types.PhaseInterval {
	if len(ivs) == 0 {
		return nil
	}
	caseID := ivs[0].CaseID
	out := make([]types.PhaseInterval, 0, len(ivs)*2+1)
	if ivs[0].StartFrame > 0 {
		out = append(out, idle(caseID, 0, ivs[0].StartFrame-1, fps))
	}
	for i, iv := range ivs {
		out = append(out, iv)
		if i+1 < len(ivs) && ivs[i+1].StartFrame-iv.EndFrame > 1 {
			out = append(out, idle(caseID, iv.EndFrame+1, ivs[i+1].StartFrame-1, fps))
		}
	}
	if tail := out[len(out)-1].EndFrame; totalFrames > 0 && tail < totalFrames-1 {
		out = append(out, idle(caseID, tail+1, totalFrames-1, fps))
	}
	return out
}

func idle(caseID string, start, end int, fps float64) types.PhaseInterval {
	iv := types.PhaseInterval{
		CaseID:     caseID,
		Label:      types.IdleLabel,
		StartFrame: start,
		EndFrame:   end,
		Synthetic:  true,
	}
	stamp(&iv, fps)
	return iv
}

func stamp(iv *types.PhaseInterval, fps float64) {
	if fps <= 0 {
		return
	}
	iv.StartTime = float64(iv.StartFrame) / fps
	iv.EndTime = float64(iv.EndFrame) / fps
	iv.HasTime = true
}

// frameEpsilon absorbs float error in sec*fps, e.g. 0.1s at 30 fps.
const frameEpsilon = 1e-6

// SecondsToFrame converts a timestamp to a frame index, truncating.
func SecondsToFrame(sec, fps float64) int {
	return int(math.Floor(sec*fps + frameEpsilon))
}

// EndSecondsToFrame converts an exclusive end timestamp to the last frame
// it covers, never before start.
func EndSecondsToFrame(sec, fps float64, start int) int {
	end := int(math.Ceil(sec*fps-frameEpsilon)) - 1
	if end < start {
		return start
	}
	return end
}
