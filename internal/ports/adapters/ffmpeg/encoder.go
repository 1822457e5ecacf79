package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// Encoder writes clips by piping raw frames into an ffmpeg process.
type Encoder struct {
	ffmpeg string
	opts   EncodeOptions
}

func (a *Adapter) Encoder() *Encoder {
	return &Encoder{ffmpeg: a.ffmpeg, opts: a.enc}
}

func encodeArgs(path string, info types.StreamInfo, opts EncodeOptions) []string {
	args := rawInputArgs(info, info.FPS)
	args = append(args, "-an", "-c:v", opts.Codec)
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.CRF >= 0 {
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
	}
	return append(args, "-pix_fmt", "yuv420p", path)
}

func (e *Encoder) Open(ctx context.Context, path string, info types.StreamInfo) (ports.Sink, error) {
	cmd := exec.CommandContext(ctx, e.ffmpeg, encodeArgs(path, info, e.opts)...)
	s := &sink{cmd: cmd, size: frameBytes(info)}
	cmd.Stderr = &s.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg encode: %w", err)
	}
	s.stdin = stdin
	s.w = bufio.NewWriterSize(stdin, s.size)
	return s, nil
}

type sink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	w      *bufio.Writer
	stderr bytes.Buffer
	size   int
}

func (s *sink) Write(f types.Frame) error {
	if len(f.Data) != s.size {
		return fmt.Errorf("frame %d has %d bytes, want %d", f.Index, len(f.Data), s.size)
	}
	if _, err := s.w.Write(f.Data); err != nil {
		return fmt.Errorf("ffmpeg encode: %w\n%s", err, s.stderr.String())
	}
	return nil
}

// Close flushes pending frames and waits for the encoder to finish the file.
func (s *sink) Close() error {
	ferr := s.w.Flush()
	cerr := s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w\n%s", err, s.stderr.String())
	}
	if ferr != nil {
		return fmt.Errorf("ffmpeg encode: %w", ferr)
	}
	if cerr != nil {
		return fmt.Errorf("ffmpeg encode: %w", cerr)
	}
	return nil
}
