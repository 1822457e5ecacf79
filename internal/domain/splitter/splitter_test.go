package splitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// fakeSource yields frames 0..total-1; frames listed in bad fail to decode.
type fakeSource struct {
	total int
	bad   map[int]bool
	pos   int
	reads int
	seeks []int
}

func (f *fakeSource) Info() types.StreamInfo { return types.StreamInfo{FPS: 25, TotalFrames: f.total} }

func (f *fakeSource) Next(context.Context) (types.Frame, error) {
	if f.pos >= f.total {
		return types.Frame{}, io.EOF
	}
	idx := f.pos
	f.pos++
	f.reads++
	if f.bad[idx] {
		return types.Frame{}, fmt.Errorf("corrupt packet: %w", types.ErrDecodeFailure)
	}
	return types.Frame{Index: idx, Data: []byte(strconv.Itoa(idx))}, nil
}

func (f *fakeSource) Close() error { return nil }

type seekableSource struct{ fakeSource }

func (s *seekableSource) Seek(_ context.Context, frame int) error {
	s.seeks = append(s.seeks, frame)
	s.pos = frame
	return nil
}

type fakeSink struct {
	frames []int
	closed int
}

func (s *fakeSink) Write(f types.Frame) error {
	n, err := strconv.Atoi(string(f.Data))
	if err != nil || n != f.Index {
		return fmt.Errorf("frame payload %q does not match index %d", f.Data, f.Index)
	}
	s.frames = append(s.frames, n)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

type recorder struct {
	sinks   map[string]*fakeSink
	failFor map[string]bool
	order   []string
}

func newRecorder() *recorder {
	return &recorder{sinks: map[string]*fakeSink{}, failFor: map[string]bool{}}
}

func (r *recorder) open(_ context.Context, seg types.OutputSegment) (ports.Sink, error) {
	if r.failFor[seg.Path] {
		return nil, errors.New("permission denied")
	}
	s := &fakeSink{}
	r.sinks[seg.Path] = s
	r.order = append(r.order, seg.Path)
	return s, nil
}

func segs(bounds ...[2]int) []types.OutputSegment {
	out := make([]types.OutputSegment, len(bounds))
	for i, b := range bounds {
		out[i] = types.OutputSegment{
			Label:      fmt.Sprintf("L%d", i),
			StartFrame: b[0],
			EndFrame:   b[1],
			Path:       fmt.Sprintf("seg%d", i),
		}
	}
	return out
}

func frameRange(a, b int) []int {
	var out []int
	for i := a; i <= b; i++ {
		out = append(out, i)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRun_GapFreeCoverage(t *testing.T) {
	src := &fakeSource{total: 31}
	rec := newRecorder()
	plan := segs([2]int{0, 9}, [2]int{10, 20}, [2]int{21, 24}, [2]int{25, 30})

	sp := New(src, rec.open, Options{Strategy: Streaming})
	res, err := sp.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var all []int
	for i, r := range res {
		if r.Status != types.StatusWritten {
			t.Fatalf("segment %d status %s: %v", i, r.Status, r.Err)
		}
		sink := rec.sinks[plan[i].Path]
		if sink.closed != 1 {
			t.Fatalf("segment %d closed %d times", i, sink.closed)
		}
		if !equalInts(sink.frames, frameRange(plan[i].StartFrame, plan[i].EndFrame)) {
			t.Fatalf("segment %d frames %v", i, sink.frames)
		}
		all = append(all, sink.frames...)
	}
	if !equalInts(all, frameRange(0, 30)) {
		t.Fatalf("coverage mismatch: %v", all)
	}
	if src.reads != 31 {
		t.Fatalf("expected a single pass of 31 reads, got %d", src.reads)
	}
	if sp.State() != Done {
		t.Fatalf("final state %s", sp.State())
	}
}

func TestRun_RecoverableDecodeFailure(t *testing.T) {
	src := &fakeSource{total: 30, bad: map[int]bool{15: true}}
	rec := newRecorder()
	plan := segs([2]int{0, 9}, [2]int{10, 20}, [2]int{21, 29})

	res, err := New(src, rec.open, Options{}).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[1].Status != types.StatusTruncated || !errors.Is(res[1].Err, types.ErrDecodeFailure) {
		t.Fatalf("unexpected result for broken segment: %+v", res[1])
	}
	if got := rec.sinks["seg1"].frames; !equalInts(got, frameRange(10, 14)) {
		t.Fatalf("broken segment frames %v, want 10..14", got)
	}
	if rec.sinks["seg1"].closed != 1 {
		t.Fatalf("broken segment sink not closed once")
	}
	if res[2].Status != types.StatusWritten || !equalInts(rec.sinks["seg2"].frames, frameRange(21, 29)) {
		t.Fatalf("next segment did not open normally: %+v %v", res[2], rec.sinks["seg2"].frames)
	}
}

func TestRun_SinkOpenFailureSkipsSegmentOnly(t *testing.T) {
	src := &fakeSource{total: 20}
	rec := newRecorder()
	rec.failFor["seg0"] = true
	plan := segs([2]int{0, 9}, [2]int{10, 19})

	res, err := New(src, rec.open, Options{Strategy: Streaming}).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[0].Status != types.StatusFailed || !errors.Is(res[0].Err, types.ErrSinkOpenFailure) {
		t.Fatalf("unexpected first result: %+v", res[0])
	}
	if !equalInts(rec.sinks["seg1"].frames, frameRange(10, 19)) {
		t.Fatalf("second segment frames %v", rec.sinks["seg1"].frames)
	}
}

func TestRun_LabelStreamShorterThanVideo(t *testing.T) {
	src := &fakeSource{total: 100}
	rec := newRecorder()
	plan := segs([2]int{0, 4}, [2]int{5, 9})

	res, err := New(src, rec.open, Options{Strategy: Streaming}).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[1].Status != types.StatusWritten {
		t.Fatalf("unexpected result %+v", res[1])
	}
	if src.reads != 10 {
		t.Fatalf("trailing unlabeled frames should not be read, got %d reads", src.reads)
	}
}

func TestRun_StreamEndsEarly(t *testing.T) {
	src := &fakeSource{total: 12}
	rec := newRecorder()
	plan := segs([2]int{0, 9}, [2]int{10, 19}, [2]int{20, 29})

	res, err := New(src, rec.open, Options{}).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res[1].Status != types.StatusTruncated || res[1].Written != 2 {
		t.Fatalf("unexpected truncated result %+v", res[1])
	}
	if res[2].Status != types.StatusSkipped || res[2].Err == nil {
		t.Fatalf("segment after the end should be skipped: %+v", res[2])
	}
	if _, opened := rec.sinks["seg2"]; opened {
		t.Fatalf("no sink should open past the end of the stream")
	}
}

func TestRun_SeeksOverLongGaps(t *testing.T) {
	src := &seekableSource{fakeSource{total: 2000}}
	rec := newRecorder()
	plan := segs([2]int{0, 9}, [2]int{20, 29}, [2]int{1500, 1509})

	res, err := New(src, rec.open, Options{Strategy: Auto, SeekThreshold: 100}).Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, r := range res {
		if r.Status != types.StatusWritten {
			t.Fatalf("segment %d: %+v", i, r)
		}
	}
	if len(src.seeks) != 1 || src.seeks[0] != 1500 {
		t.Fatalf("expected a single seek to 1500, got %v", src.seeks)
	}
	if !equalInts(rec.sinks["seg2"].frames, frameRange(1500, 1509)) {
		t.Fatalf("frames after seek %v", rec.sinks["seg2"].frames)
	}
}

func TestRun_StreamingNeverSeeks(t *testing.T) {
	src := &seekableSource{fakeSource{total: 2000}}
	rec := newRecorder()
	plan := segs([2]int{1500, 1509})

	if _, err := New(src, rec.open, Options{Strategy: Streaming}).Run(context.Background(), plan); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(src.seeks) != 0 || src.reads != 1510 {
		t.Fatalf("streaming strategy seeked %v, reads %d", src.seeks, src.reads)
	}
}

func TestRun_CancelClosesActiveSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{total: 100}
	rec := newRecorder()
	open := func(ctx context.Context, seg types.OutputSegment) (ports.Sink, error) {
		s, err := rec.open(ctx, seg)
		cancel()
		return s, err
	}
	plan := segs([2]int{0, 49}, [2]int{50, 99})

	res, err := New(src, open, Options{}).Run(ctx, plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rec.sinks["seg0"].closed != 1 {
		t.Fatalf("active sink not closed on cancel")
	}
	if res[0].Status != types.StatusFailed || res[1].Status != types.StatusFailed {
		t.Fatalf("unexpected statuses %s %s", res[0].Status, res[1].Status)
	}
}

func TestSample_WritesScheduledFrames(t *testing.T) {
	src := &fakeSource{total: 100, bad: map[int]bool{40: true}}
	var written []int
	write := func(_ context.Context, seg types.OutputSegment, f types.Frame) (string, error) {
		written = append(written, f.Index)
		return fmt.Sprintf("%s_%d.png", seg.Path, f.Index), nil
	}
	plans := []types.SamplingPlan{
		{Segment: segs([2]int{0, 29})[0], Frames: []int{0, 10, 20}},
		{Segment: types.OutputSegment{Path: "empty", StartFrame: 30, EndFrame: 30}},
		{Segment: types.OutputSegment{Path: "b", StartFrame: 31, EndFrame: 99}, Frames: []int{40, 60, 80}},
	}
	res, err := Sample(context.Background(), src, plans, write, Options{Strategy: Streaming})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !equalInts(written, []int{0, 10, 20, 60, 80}) {
		t.Fatalf("written frames %v", written)
	}
	if res[0].Status != types.StatusWritten || len(res[0].Paths) != 3 {
		t.Fatalf("first plan %+v", res[0])
	}
	if res[1].Status != types.StatusSkipped {
		t.Fatalf("empty plan should be skipped: %+v", res[1])
	}
	if res[2].Status != types.StatusTruncated || len(res[2].Failures) != 1 || !errors.Is(res[2].Failures[0], types.ErrDecodeFailure) {
		t.Fatalf("third plan %+v", res[2])
	}
	if src.reads != 81 {
		t.Fatalf("expected one forward pass up to frame 80, got %d reads", src.reads)
	}
}
