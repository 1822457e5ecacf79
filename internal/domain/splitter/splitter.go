// Package splitter routes one forward pass over a decoded video into
// per-segment clips or sampled stills.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

type State int

const (
	Idle State = iota
	SegmentOpen
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SegmentOpen:
		return "segment-open"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SinkOpener creates the output of one segment.
type SinkOpener func(ctx context.Context, seg types.OutputSegment) (ports.Sink, error)

// Result is the outcome of one segment.
type Result struct {
	Segment types.OutputSegment
	Status  string
	Written int
	Err     error
}

// Splitter holds the state of one case's pass. It is not safe for concurrent use.
type Splitter struct {
	r     *reader
	open  SinkOpener
	state State
	sink  ports.Sink
}

func New(src ports.FrameSource, open SinkOpener, opts Options) *Splitter {
	return &Splitter{r: newReader(src, opts), open: open}
}

func (s *Splitter) State() State { return s.state }

// Run writes every segment in order. segs must be sorted and non-overlapping.
// Segment-level problems are reported in the results; the returned error is
// set only when the pass itself cannot continue (cancellation, a broken
// source), in which case the remaining segments are marked failed.
func (s *Splitter) Run(ctx context.Context, segs []types.OutputSegment) ([]Result, error) {
	results := make([]Result, len(segs))
	for i := range segs {
		results[i] = Result{Segment: segs[i], Status: types.StatusSkipped}
	}
	defer s.release()

	for i, seg := range segs {
		res := &results[i]
		if err := ctx.Err(); err != nil {
			return results, s.abort(results[i:], err)
		}
		if s.r.exhausted {
			res.Err = fmt.Errorf("stream ended at frame %d before segment start %d", s.r.pos, seg.StartFrame)
			continue
		}
		if err := s.r.skipTo(ctx, seg.StartFrame); err != nil {
			if errors.Is(err, io.EOF) {
				res.Err = fmt.Errorf("stream ended at frame %d before segment start %d", s.r.pos, seg.StartFrame)
				continue
			}
			return results, s.abort(results[i:], err)
		}
		if err := s.write(ctx, seg, res); err != nil {
			return results, s.abort(results[i+1:], err)
		}
	}
	s.state = Done
	return results, nil
}

// write drives one segment from Idle through SegmentOpen and back.
func (s *Splitter) write(ctx context.Context, seg types.OutputSegment, res *Result) error {
	sink, err := s.open(ctx, seg)
	if err != nil {
		res.Status = types.StatusFailed
		res.Err = fmt.Errorf("%w: %s: %v", types.ErrSinkOpenFailure, seg.Path, err)
		return nil
	}
	s.sink, s.state = sink, SegmentOpen
	res.Status = types.StatusWritten

	var fatal error
	for s.r.pos <= seg.EndFrame {
		if err := ctx.Err(); err != nil {
			res.Status, res.Err, fatal = types.StatusFailed, err, err
			break
		}
		f, err := s.r.next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				res.Status = types.StatusTruncated
				res.Err = fmt.Errorf("stream ended at frame %d, segment ends at %d", s.r.pos, seg.EndFrame)
			case errors.Is(err, types.ErrDecodeFailure):
				res.Status, res.Err = types.StatusTruncated, err
			default:
				res.Status, res.Err, fatal = types.StatusFailed, err, err
			}
			break
		}
		if err := sink.Write(f); err != nil {
			res.Status = types.StatusFailed
			res.Err = fmt.Errorf("write frame %d: %w", f.Index, err)
			break
		}
		res.Written++
	}

	if err := s.closeSink(); err != nil && res.Status != types.StatusFailed {
		res.Status = types.StatusFailed
		res.Err = fmt.Errorf("close %s: %w", seg.Path, err)
	}
	return fatal
}

func (s *Splitter) closeSink() error {
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	s.sink, s.state = nil, Idle
	return err
}

func (s *Splitter) release() {
	_ = s.closeSink()
	s.state = Done
}

func (s *Splitter) abort(rest []Result, cause error) error {
	for i := range rest {
		if rest[i].Status == types.StatusSkipped && rest[i].Err == nil {
			rest[i].Status = types.StatusFailed
			rest[i].Err = cause
		}
	}
	return cause
}
