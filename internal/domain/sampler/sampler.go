// Package sampler schedules the still frames taken from one segment.
package sampler

import (
	"math"

	"github.com/forPelevin/phasesplit/internal/types"
)

type Options struct {
	// MaxFrames bounds the stills taken per segment.
	MaxFrames int
	// MinSpacing is the minimum time between two stills, in seconds.
	MinSpacing float64
}

// Step returns the frame distance between consecutive samples.
func Step(span int, fps float64, opts Options) float64 {
	return math.Max(float64(span)/float64(opts.MaxFrames), opts.MinSpacing*fps)
}

// Plan samples the indices start + floor(i*step) for i < MaxFrames from seg, evenly spread over the
// segment but never closer than MinSpacing seconds. A segment whose span
// (end - start) is not positive yields an empty plan.
func Plan(seg types.OutputSegment, fps float64, opts Options) types.SamplingPlan {
	plan := types.SamplingPlan{Segment: seg}
	span := seg.EndFrame - seg.StartFrame
	if span <= 0 || opts.MaxFrames <= 0 {
		return plan
	}
	step := Step(span, fps, opts)
	prev := -1
	// At most MaxFrames schedule slots; a sub-frame step repeats an index,
	// which is kept once.
	for i := 0; i < opts.MaxFrames; i++ {
		idx := seg.StartFrame + int(math.Floor(float64(i)*step))
		if idx > seg.EndFrame {
			break
		}
		if idx == prev {
			continue
		}
		plan.Frames = append(plan.Frames, idx)
		prev = idx
	}
	return plan
}
