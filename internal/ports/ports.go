package ports

import (
	"context"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Decoder opens videos as forward frame streams.
type Decoder interface {
	Probe(ctx context.Context, path string) (types.StreamInfo, error)
	Open(ctx context.Context, path string) (FrameSource, error)
}

// FrameSource yields frames in order. Next returns io.EOF at the end of the
// stream and an error wrapping types.ErrDecodeFailure for a frame that could
// not be decoded; in the latter case the stream has still advanced past it.
type FrameSource interface {
	Info() types.StreamInfo
	Next(ctx context.Context) (types.Frame, error)
	Close() error
}

// Seeker is implemented by sources that can reposition to a frame index.
type Seeker interface {
	Seek(ctx context.Context, frame int) error
}

type Encoder interface {
	Open(ctx context.Context, path string, info types.StreamInfo) (Sink, error)
}

// Sink receives the frames of one output clip. Close must be called exactly once.
type Sink interface {
	Write(f types.Frame) error
	Close() error
}

type ImageWriter interface {
	WriteImage(ctx context.Context, path string, f types.Frame, info types.StreamInfo) error
}

type TableReader interface {
	ReadTable(path string, comma rune, header bool) (types.Table, error)
}
