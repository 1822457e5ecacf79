//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"testing"
)

// probeFrameCount decodes every packet of the first video stream and
// returns the frame count ffprobe reports.
func probeFrameCount(path string) (int, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse frame count %q: %w", s, err)
	}
	return n, nil
}

// makeVideo renders a lavfi test pattern of n frames at 10 fps.
func makeVideo(t *testing.T, path string, n int) {
	t.Helper()
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "testsrc=size=64x48:rate=10",
		"-frames:v", strconv.Itoa(n),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}
