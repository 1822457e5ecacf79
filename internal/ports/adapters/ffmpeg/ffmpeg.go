package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/phasesplit/internal/types"
)

// EncodeOptions are passed to the ffmpeg video encoder of every clip.
type EncodeOptions struct {
	Codec  string
	Preset string
	// CRF below zero leaves the encoder default.
	CRF int
}

type Adapter struct {
	ffmpeg  string
	ffprobe string
	enc     EncodeOptions
}

func New(ffmpegPath, ffprobePath string, enc EncodeOptions) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if enc.Codec == "" {
		enc.Codec = "libx264"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, enc: enc}
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads frame rate, frame size and frame count of the first video stream.
func (a *Adapter) Probe(ctx context.Context, path string) (types.StreamInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.StreamInfo{}, fmt.Errorf("ffprobe: %w\n%s", err, stderr.String())
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return types.StreamInfo{}, fmt.Errorf("no video stream")
	}
	s := out.Streams[0]
	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	if fps <= 0 {
		return types.StreamInfo{}, fmt.Errorf("could not determine frame rate (avg %q, r %q)", s.AvgFrameRate, s.RFrameRate)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return types.StreamInfo{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	info := types.StreamInfo{FPS: fps, Width: s.Width, Height: s.Height}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
		return info, nil
	}
	for _, d := range []string{s.Duration, out.Format.Duration} {
		if sec, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil && sec > 0 {
			info.TotalFrames = int(math.Round(sec * fps))
			return info, nil
		}
	}
	return types.StreamInfo{}, fmt.Errorf("could not determine frame count")
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// WriteImage encodes one raw frame as a still image; the format follows
// the path's extension.
func (a *Adapter) WriteImage(ctx context.Context, path string, f types.Frame, info types.StreamInfo) error {
	args := append(rawInputArgs(info, 0), "-frames:v", "1", path)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	cmd.Stdin = bytes.NewReader(f.Data)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg write image: %w\n%s", err, string(b))
	}
	return nil
}

// rawInputArgs describes rgb24 frames arriving on stdin.
func rawInputArgs(info types.StreamInfo, fps float64) []string {
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
	}
	if fps > 0 {
		args = append(args, "-r", fmtRate(fps))
	}
	return append(args, "-i", "-")
}

func fmtRate(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}

func frameBytes(info types.StreamInfo) int {
	return info.Width * info.Height * 3
}
