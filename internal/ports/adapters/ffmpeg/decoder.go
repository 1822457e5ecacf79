package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// Open probes path and starts an ffmpeg process that writes raw rgb24 frames
// to its stdout. The returned source also implements ports.Seeker.
func (a *Adapter) Open(ctx context.Context, path string) (ports.FrameSource, error) {
	info, err := a.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	s := &source{ffmpeg: a.ffmpeg, path: path, info: info}
	if err := s.start(ctx, 0); err != nil {
		return nil, err
	}
	return s, nil
}

type source struct {
	ffmpeg string
	path   string
	info   types.StreamInfo

	cmd    *exec.Cmd
	cancel context.CancelFunc
	out    *bufio.Reader
	stderr bytes.Buffer
	done   bool
}

func (s *source) Info() types.StreamInfo { return s.info }

func decodeArgs(path string, info types.StreamInfo, from int) []string {
	args := []string{"-v", "error", "-nostdin"}
	if from > 0 {
		// Half a frame early so rounding never drops the target frame.
		args = append(args, "-ss", fmtSeconds((float64(from)-0.5)/info.FPS))
	}
	return append(args,
		"-i", path,
		"-map", "0:v:0",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
}

func (s *source) start(ctx context.Context, from int) error {
	pctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(pctx, s.ffmpeg, decodeArgs(s.path, s.info, from)...)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg decode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg decode: %w", err)
	}
	s.cmd, s.cancel, s.done = cmd, cancel, false
	s.out = bufio.NewReaderSize(stdout, frameBytes(s.info))
	return nil
}

// Next reads one frame. Index is left to the caller, which tracks position.
func (s *source) Next(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	if s.done {
		return types.Frame{}, io.EOF
	}
	buf := make([]byte, frameBytes(s.info))
	n, err := io.ReadFull(s.out, buf)
	switch {
	case err == nil:
		return types.Frame{Data: buf}, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return types.Frame{}, fmt.Errorf("%w: short frame of %d bytes", types.ErrDecodeFailure, n)
	case errors.Is(err, io.EOF):
		s.done = true
		if werr := s.wait(); werr != nil && ctx.Err() == nil {
			return types.Frame{}, fmt.Errorf("ffmpeg decode: %w\n%s", werr, s.stderr.String())
		}
		return types.Frame{}, io.EOF
	default:
		return types.Frame{}, fmt.Errorf("ffmpeg decode: %w", err)
	}
}

// Seek restarts decoding at frame.
func (s *source) Seek(ctx context.Context, frame int) error {
	s.stop()
	return s.start(ctx, frame)
}

func (s *source) Close() error {
	s.stop()
	return nil
}

func (s *source) wait() error {
	if s.cmd == nil {
		return nil
	}
	err := s.cmd.Wait()
	s.cmd = nil
	s.cancel()
	return err
}

func (s *source) stop() {
	if s.cmd == nil {
		return
	}
	s.cancel()
	_ = s.cmd.Wait()
	s.cmd = nil
}
