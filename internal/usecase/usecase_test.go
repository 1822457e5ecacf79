package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/phasesplit/internal/dataset"
	"github.com/forPelevin/phasesplit/internal/domain/convention"
	"github.com/forPelevin/phasesplit/internal/domain/planner"
	"github.com/forPelevin/phasesplit/internal/domain/sampler"
	"github.com/forPelevin/phasesplit/internal/domain/splitter"
	"github.com/forPelevin/phasesplit/internal/metrics"
	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

type fakeDecoder struct {
	info   types.StreamInfo
	bad    map[int]bool
	opened int
}

func (d *fakeDecoder) Probe(context.Context, string) (types.StreamInfo, error) { return d.info, nil }

func (d *fakeDecoder) Open(context.Context, string) (ports.FrameSource, error) {
	d.opened++
	return &fakeSource{info: d.info, bad: d.bad}, nil
}

type fakeSource struct {
	info   types.StreamInfo
	bad    map[int]bool
	pos    int
	closed bool
}

func (s *fakeSource) Info() types.StreamInfo { return s.info }

func (s *fakeSource) Next(context.Context) (types.Frame, error) {
	if s.pos >= s.info.TotalFrames {
		return types.Frame{}, io.EOF
	}
	idx := s.pos
	s.pos++
	if s.bad[idx] {
		return types.Frame{}, fmt.Errorf("bad packet: %w", types.ErrDecodeFailure)
	}
	return types.Frame{Data: []byte{byte(idx % 256)}}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeEncoder struct {
	frames map[string][]int
	fail   map[string]bool
}

func (e *fakeEncoder) Open(_ context.Context, path string, _ types.StreamInfo) (ports.Sink, error) {
	if e.fail[filepath.Base(path)] {
		return nil, errors.New("disk full")
	}
	if e.frames == nil {
		e.frames = map[string][]int{}
	}
	e.frames[path] = []int{}
	return &fakeSink{enc: e, path: path}, nil
}

type fakeSink struct {
	enc  *fakeEncoder
	path string
}

func (s *fakeSink) Write(f types.Frame) error {
	s.enc.frames[s.path] = append(s.enc.frames[s.path], f.Index)
	return nil
}

func (s *fakeSink) Close() error { return nil }

type fakeImages struct{ paths []string }

func (w *fakeImages) WriteImage(_ context.Context, path string, _ types.Frame, _ types.StreamInfo) error {
	w.paths = append(w.paths, path)
	return nil
}

type fakeTables struct {
	tab  types.Table
	err  error
	read int
}

func (f *fakeTables) ReadTable(string, rune, bool) (types.Table, error) {
	f.read++
	return f.tab, f.err
}

func builtin(t *testing.T, name string) *convention.Convention {
	t.Helper()
	reg, err := convention.NewRegistry(nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c, err := reg.Get(name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return c
}

func row(line int, kv ...string) types.Row {
	r := types.Row{Line: line, Values: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Values[kv[i]] = kv[i+1]
	}
	return r
}

func cataract101Input(t *testing.T, outDir, mode string) Input {
	return Input{
		Case: dataset.Case{
			ID:         "4",
			Video:      "/videos/case_4.mp4",
			Annotation: "/ann/annotations.csv",
			Rows: []types.Row{
				row(2, "VideoID", "4", "FrameNo", "10", "Phase", "1"),
				row(3, "VideoID", "4", "FrameNo", "20", "Phase", "3"),
			},
		},
		Convention: builtin(t, "cataract101"),
		Mode:       mode,
		OutDir:     outDir,
		Ext:        "mp4",
		ImageExt:   "png",
		Policy:     planner.UnnumberedFirst,
		Sampling:   sampler.Options{MaxFrames: 3, MinSpacing: 0.1},
		Read:       splitter.Options{Strategy: splitter.Streaming},
	}
}

func TestPlanAndExecute_Clips(t *testing.T) {
	out := t.TempDir()
	dec := &fakeDecoder{info: types.StreamInfo{FPS: 10, Width: 1, Height: 1, TotalFrames: 30}}
	enc := &fakeEncoder{}
	rec := metrics.New()
	uc := New(Deps{Decoder: dec, Encoder: enc, Tables: &fakeTables{}, Metrics: rec})
	in := cataract101Input(t, out, ModeClips)

	plan, err := uc.Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	wantNames := []string{"Cataract101_ID0004_Idle", "Cataract101_ID0004_Incision", "Cataract101_ID0004_Capsulorhexis"}
	if len(plan.Segments) != len(wantNames) {
		t.Fatalf("expected %d segments, got %d", len(wantNames), len(plan.Segments))
	}
	for i, s := range plan.Segments {
		if s.BaseName != wantNames[i] {
			t.Fatalf("segment %d named %s, want %s", i, s.BaseName, wantNames[i])
		}
	}

	mc, err := uc.Execute(context.Background(), in, plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if mc.Status != types.StatusWritten {
		t.Fatalf("case status %s (%s)", mc.Status, mc.Reason)
	}
	incision := filepath.Join(out, "Incision", "Cataract101_ID0004_Incision.mp4")
	if got := enc.frames[incision]; len(got) != 10 || got[0] != 10 || got[9] != 19 {
		t.Fatalf("incision frames %v", got)
	}
	if _, err := os.Stat(filepath.Join(out, "Capsulorhexis")); err != nil {
		t.Fatalf("label directory not created: %v", err)
	}
	if mc.Segments[1].File != "Incision/Cataract101_ID0004_Incision.mp4" {
		t.Fatalf("manifest file %q", mc.Segments[1].File)
	}
	if dec.opened != 1 {
		t.Fatalf("video should be opened once, got %d", dec.opened)
	}
}

func TestExecute_ContainsSegmentFailures(t *testing.T) {
	out := t.TempDir()
	dec := &fakeDecoder{
		info: types.StreamInfo{FPS: 10, Width: 1, Height: 1, TotalFrames: 30},
		bad:  map[int]bool{15: true},
	}
	enc := &fakeEncoder{fail: map[string]bool{"Cataract101_ID0004_Idle.mp4": true}}
	uc := New(Deps{Decoder: dec, Encoder: enc, Tables: &fakeTables{}})
	in := cataract101Input(t, out, ModeClips)

	plan, err := uc.Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	mc, err := uc.Execute(context.Background(), in, plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := []string{mc.Segments[0].Status, mc.Segments[1].Status, mc.Segments[2].Status}
	want := []string{types.StatusFailed, types.StatusTruncated, types.StatusWritten}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment statuses %v, want %v", got, want)
		}
	}
	if mc.Status != types.StatusTruncated {
		t.Fatalf("case status %s", mc.Status)
	}
	if mc.Segments[1].FramesWritten != 5 {
		t.Fatalf("truncated segment wrote %d frames", mc.Segments[1].FramesWritten)
	}
	if !strings.Contains(mc.Segments[0].Reason, "disk full") {
		t.Fatalf("reason %q", mc.Segments[0].Reason)
	}
}

func TestPlanAndExecute_Frames(t *testing.T) {
	out := t.TempDir()
	dec := &fakeDecoder{info: types.StreamInfo{FPS: 10, Width: 1, Height: 1, TotalFrames: 30}}
	imgs := &fakeImages{}
	uc := New(Deps{Decoder: dec, Images: imgs, Tables: &fakeTables{}})
	in := cataract101Input(t, out, ModeFrames)

	plan, err := uc.Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Samples) != 3 || len(plan.Samples[1].Frames) != 3 {
		t.Fatalf("unexpected samples %+v", plan.Samples)
	}
	mc, err := uc.Execute(context.Background(), in, plan)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(imgs.paths) != 9 {
		t.Fatalf("expected 9 stills, got %d: %v", len(imgs.paths), imgs.paths)
	}
	want := filepath.Join(out, "Incision", "Cataract101_ID0004_Incision_10.png")
	if imgs.paths[3] != want {
		t.Fatalf("still path %s, want %s", imgs.paths[3], want)
	}
	if mc.Segments[1].Stills[0] != "Incision/Cataract101_ID0004_Incision_10.png" {
		t.Fatalf("manifest stills %v", mc.Segments[1].Stills)
	}
}

func TestPlan_ReadsAnnotationFile(t *testing.T) {
	tables := &fakeTables{tab: types.Table{Rows: []types.Row{
		row(2, "caseId", "7", "comment", "Incision", "frame", "0", "endFrame", "4"),
		row(3, "caseId", "7", "comment", "Phacoemulsification", "frame", "8", "endFrame", "9"),
	}}}
	dec := &fakeDecoder{info: types.StreamInfo{FPS: 25, TotalFrames: 12}}
	uc := New(Deps{Decoder: dec, Tables: tables})
	in := Input{
		Case:       dataset.Case{ID: "7", Video: "case_7.mp4", Annotation: "case_7_annotations_phases.csv"},
		Convention: builtin(t, "cataract1k"),
		Mode:       ModeClips,
		OutDir:     "out",
		Ext:        "mp4",
	}
	plan, err := uc.Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if tables.read != 1 {
		t.Fatalf("annotation read %d times", tables.read)
	}
	var labels []string
	for _, iv := range plan.Intervals {
		labels = append(labels, fmt.Sprintf("%s:%d-%d", iv.Label, iv.StartFrame, iv.EndFrame))
	}
	want := "Incision:0-4 Idle:5-7 Phaco:8-9 Idle:10-11"
	if strings.Join(labels, " ") != want {
		t.Fatalf("timeline %v, want %s", labels, want)
	}
	if plan.Segments[3].BaseName != "Cataract1k_ID0007_Idle_2" {
		t.Fatalf("second idle named %s", plan.Segments[3].BaseName)
	}
}

func TestPlan_MalformedAnnotation(t *testing.T) {
	tables := &fakeTables{err: errors.New("parse table: bare quote")}
	uc := New(Deps{Decoder: &fakeDecoder{info: types.StreamInfo{FPS: 25, TotalFrames: 10}}, Tables: tables})
	in := Input{
		Case:       dataset.Case{ID: "1", Video: "case_1.mp4", Annotation: "case_1.csv"},
		Convention: builtin(t, "cataract21"),
		Mode:       ModeClips,
	}
	_, err := uc.Plan(context.Background(), in)
	if !errors.Is(err, types.ErrMalformedAnnotation) {
		t.Fatalf("expected malformed annotation, got %v", err)
	}
}

func TestPlanned(t *testing.T) {
	dec := &fakeDecoder{info: types.StreamInfo{FPS: 10, TotalFrames: 30}}
	uc := New(Deps{Decoder: dec, Tables: &fakeTables{}})
	in := cataract101Input(t, "out", ModeFrames)
	plan, err := uc.Plan(context.Background(), in)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	mc := Planned(in, plan)
	if mc.Status != types.StatusPlanned || len(mc.Segments) != 3 {
		t.Fatalf("unexpected planned case %+v", mc)
	}
	if len(mc.Segments[0].Stills) != 3 || mc.Segments[0].File != "" {
		t.Fatalf("frame-mode plan should list stills only: %+v", mc.Segments[0])
	}
	if dec.opened != 0 {
		t.Fatalf("dry run must not decode")
	}
}
