package splitter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// StillWriter stores one sampled frame and returns where it went.
type StillWriter func(ctx context.Context, seg types.OutputSegment, f types.Frame) (string, error)

type StillsResult struct {
	Segment types.OutputSegment
	Status  string
	Paths   []string
	// Failures holds one error per requested frame that was not written.
	Failures []error
}

// Sample walks the plans in order, writing every scheduled frame. Frames
// that cannot be decoded or written are recorded and skipped. plans must be
// sorted by segment and hold increasing indices.
func Sample(ctx context.Context, src ports.FrameSource, plans []types.SamplingPlan, write StillWriter, opts Options) ([]StillsResult, error) {
	r := newReader(src, opts)
	results := make([]StillsResult, len(plans))
	for i, p := range plans {
		results[i] = StillsResult{Segment: p.Segment, Status: types.StatusSkipped}
	}

	for i, p := range plans {
		res := &results[i]
		if len(p.Frames) == 0 {
			res.Failures = append(res.Failures, fmt.Errorf("segment %s spans %d frames, nothing to sample", p.Segment.BaseName, p.Segment.Frames()))
			continue
		}
		for _, idx := range p.Frames {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if r.exhausted {
				res.Failures = append(res.Failures, fmt.Errorf("frame %d: stream ended at frame %d", idx, r.pos))
				continue
			}
			if err := r.skipTo(ctx, idx); err != nil {
				if errors.Is(err, io.EOF) {
					res.Failures = append(res.Failures, fmt.Errorf("frame %d: stream ended at frame %d", idx, r.pos))
					continue
				}
				return results, err
			}
			f, err := r.next(ctx)
			if err != nil {
				if errors.Is(err, types.ErrDecodeFailure) {
					res.Failures = append(res.Failures, err)
					continue
				}
				if errors.Is(err, io.EOF) {
					res.Failures = append(res.Failures, fmt.Errorf("frame %d: stream ended", idx))
					continue
				}
				return results, err
			}
			path, err := write(ctx, p.Segment, f)
			if err != nil {
				res.Failures = append(res.Failures, fmt.Errorf("%w: frame %d: %v", types.ErrSinkOpenFailure, idx, err))
				continue
			}
			res.Paths = append(res.Paths, path)
		}
		switch {
		case len(res.Paths) == 0:
			res.Status = types.StatusFailed
		case len(res.Failures) > 0:
			res.Status = types.StatusTruncated
		default:
			res.Status = types.StatusWritten
		}
	}
	return results, nil
}
