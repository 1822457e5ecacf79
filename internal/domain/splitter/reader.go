package splitter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// Strategy selects how the reader reaches a segment start.
type Strategy string

const (
	// Auto streams through short gaps and seeks over long ones when the source allows it.
	Auto Strategy = "auto"
	// Streaming only calls Next; gaps are decoded and discarded.
	Streaming Strategy = "streaming"
	// Seekable seeks to every segment start that is not the current position.
	Seekable Strategy = "seekable"
)

func (s Strategy) Valid() bool { return s == Auto || s == Streaming || s == Seekable }

// DefaultSeekThreshold is the gap, in frames, above which Auto seeks.
const DefaultSeekThreshold = 250

type Options struct {
	Strategy      Strategy
	SeekThreshold int
}

// reader tracks the index of the next frame the source will return.
type reader struct {
	src       ports.FrameSource
	seeker    ports.Seeker
	opts      Options
	pos       int
	exhausted bool
}

func newReader(src ports.FrameSource, opts Options) *reader {
	if opts.Strategy == "" {
		opts.Strategy = Auto
	}
	if opts.SeekThreshold <= 0 {
		opts.SeekThreshold = DefaultSeekThreshold
	}
	r := &reader{src: src, opts: opts}
	if s, ok := src.(ports.Seeker); ok && opts.Strategy != Streaming {
		r.seeker = s
	}
	return r
}

// next reads the frame at pos. The position advances on success and on a
// decode failure; io.EOF leaves it unchanged.
func (r *reader) next(ctx context.Context) (types.Frame, error) {
	if r.exhausted {
		return types.Frame{}, io.EOF
	}
	f, err := r.src.Next(ctx)
	switch {
	case err == nil:
		f.Index = r.pos
		r.pos++
		return f, nil
	case errors.Is(err, io.EOF):
		r.exhausted = true
		return types.Frame{}, io.EOF
	case errors.Is(err, types.ErrDecodeFailure):
		r.pos++
		return types.Frame{}, fmt.Errorf("frame %d: %w", r.pos-1, err)
	default:
		return types.Frame{}, err
	}
}

// skipTo positions the reader at target, seeking or discarding frames.
func (r *reader) skipTo(ctx context.Context, target int) error {
	if r.pos == target {
		return nil
	}
	if r.shouldSeek(target) {
		if err := r.seeker.Seek(ctx, target); err != nil {
			return fmt.Errorf("seek to frame %d: %w", target, err)
		}
		r.pos = target
		r.exhausted = false
		return nil
	}
	if target < r.pos {
		return fmt.Errorf("cannot rewind a forward-only stream from frame %d to %d", r.pos, target)
	}
	for r.pos < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.next(ctx); err != nil && !errors.Is(err, types.ErrDecodeFailure) {
			return err
		}
	}
	return nil
}

func (r *reader) shouldSeek(target int) bool {
	if r.seeker == nil {
		return false
	}
	switch r.opts.Strategy {
	case Seekable:
		return true
	case Auto:
		return target < r.pos || target-r.pos > r.opts.SeekThreshold
	}
	return false
}
