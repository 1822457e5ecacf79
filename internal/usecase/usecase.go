package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/forPelevin/phasesplit/internal/dataset"
	"github.com/forPelevin/phasesplit/internal/domain/convention"
	"github.com/forPelevin/phasesplit/internal/domain/planner"
	"github.com/forPelevin/phasesplit/internal/domain/sampler"
	"github.com/forPelevin/phasesplit/internal/domain/splitter"
	"github.com/forPelevin/phasesplit/internal/logging"
	"github.com/forPelevin/phasesplit/internal/metrics"
	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

// Output modes.
const (
	ModeClips  = "clips"
	ModeFrames = "frames"
)

type Deps struct {
	Decoder ports.Decoder
	Encoder ports.Encoder
	Images  ports.ImageWriter
	Tables  ports.TableReader
	Logger  *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Recorder
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return Usecase{d: d}
}

type Input struct {
	Case       dataset.Case
	Convention *convention.Convention
	Mode       string

	OutDir string
	// Tag overrides the convention's tag when set.
	Tag      string
	Ext      string
	ImageExt string
	Policy   planner.Policy

	Sampling sampler.Options
	Read     splitter.Options
}

// CasePlan is everything decided about a case before any frame is decoded.
type CasePlan struct {
	Info      types.StreamInfo
	Intervals []types.PhaseInterval
	Segments  []types.OutputSegment
	// Samples is set in frame mode, one plan per segment.
	Samples []types.SamplingPlan
}

func (in Input) tag() string {
	if in.Tag != "" {
		return in.Tag
	}
	return in.Convention.Tag
}

func (u Usecase) logger(in Input) *zap.Logger {
	return logging.WithCase(u.d.Logger, in.Case.ID, in.Convention.Name, filepath.Base(in.Case.Video))
}

// Plan probes the video, builds the case timeline and assigns every
// interval its output identity.
func (u Usecase) Plan(ctx context.Context, in Input) (CasePlan, error) {
	info, err := u.d.Decoder.Probe(ctx, in.Case.Video)
	if err != nil {
		return CasePlan{}, fmt.Errorf("probe %s: %w", in.Case.Video, err)
	}

	rows := in.Case.Rows
	if rows == nil {
		tab, err := u.d.Tables.ReadTable(in.Case.Annotation, in.Convention.Comma(), in.Convention.Header)
		if err != nil {
			return CasePlan{}, fmt.Errorf("%w: read %s: %v", types.ErrMalformedAnnotation, in.Case.Annotation, err)
		}
		rows = tab.Rows
	}

	ivs, err := in.Convention.Timeline(in.Case.ID, rows, info)
	if err != nil {
		return CasePlan{}, err
	}

	ext := in.Ext
	if in.Mode == ModeFrames {
		ext = in.ImageExt
	}
	segs, err := planner.New(in.Case.ID, planner.Options{
		OutDir: in.OutDir,
		Tag:    in.tag(),
		Ext:    ext,
		Policy: in.Policy,
	}).Plan(ivs)
	if err != nil {
		return CasePlan{}, err
	}

	p := CasePlan{Info: info, Intervals: ivs, Segments: segs}
	if in.Mode == ModeFrames {
		p.Samples = make([]types.SamplingPlan, len(segs))
		for i, s := range segs {
			p.Samples[i] = sampler.Plan(s, info.FPS, in.Sampling)
		}
	}
	return p, nil
}

// Execute decodes the case video once and writes the planned outputs. The
// returned manifest case is filled even when an error is returned.
func (u Usecase) Execute(ctx context.Context, in Input, p CasePlan) (types.ManifestCase, error) {
	log := u.logger(in)
	start := time.Now()
	mc := types.ManifestCase{
		CaseID:     in.Case.ID,
		Video:      in.Case.Video,
		Annotation: in.Case.Annotation,
		FPS:        p.Info.FPS,
		Frames:     p.Info.TotalFrames,
	}

	src, err := u.d.Decoder.Open(ctx, in.Case.Video)
	if err != nil {
		mc.Status, mc.Reason = types.StatusFailed, err.Error()
		return mc, fmt.Errorf("open %s: %w", in.Case.Video, err)
	}
	defer src.Close()

	if in.Mode == ModeFrames {
		err = u.stills(ctx, log, in, p, src, &mc)
	} else {
		err = u.clips(ctx, log, in, p, src, &mc)
	}
	mc.Status = caseStatus(mc.Segments, err)
	if err != nil {
		mc.Reason = err.Error()
	}
	if m := u.d.Metrics; m != nil {
		m.CasesTotal.WithLabelValues(mc.Status).Inc()
		m.CaseDuration.Observe(time.Since(start).Seconds())
	}
	return mc, err
}

func (u Usecase) clips(ctx context.Context, log *zap.Logger, in Input, p CasePlan, src ports.FrameSource, mc *types.ManifestCase) error {
	open := func(ctx context.Context, seg types.OutputSegment) (ports.Sink, error) {
		if err := os.MkdirAll(filepath.Dir(seg.Path), 0o755); err != nil {
			return nil, err
		}
		return u.d.Encoder.Open(ctx, seg.Path, p.Info)
	}
	results, err := splitter.New(src, open, in.Read).Run(ctx, p.Segments)
	for _, r := range results {
		ms := manifestSegment(r.Segment)
		ms.File = relPath(in.OutDir, r.Segment.Path)
		ms.FramesWritten = r.Written
		ms.Status = r.Status
		if r.Err != nil {
			ms.Reason = r.Err.Error()
		}
		u.logSegment(log, r.Segment, r.Status, r.Written, r.Err)
		u.count(r.Status, r.Written, r.Err)
		mc.Segments = append(mc.Segments, ms)
	}
	return err
}

func (u Usecase) stills(ctx context.Context, log *zap.Logger, in Input, p CasePlan, src ports.FrameSource, mc *types.ManifestCase) error {
	write := func(ctx context.Context, seg types.OutputSegment, f types.Frame) (string, error) {
		dir := filepath.Dir(seg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		path := seg.StillPath(dir, f.Index, in.ImageExt)
		if err := u.d.Images.WriteImage(ctx, path, f, p.Info); err != nil {
			return "", err
		}
		return path, nil
	}
	results, err := splitter.Sample(ctx, src, p.Samples, write, in.Read)
	for _, r := range results {
		ms := manifestSegment(r.Segment)
		for _, path := range r.Paths {
			ms.Stills = append(ms.Stills, relPath(in.OutDir, path))
		}
		ms.FramesWritten = len(r.Paths)
		ms.Status = r.Status
		failure := errors.Join(r.Failures...)
		if failure != nil {
			ms.Reason = failure.Error()
		}
		u.logSegment(log, r.Segment, r.Status, len(r.Paths), failure)
		u.count(r.Status, len(r.Paths), failure)
		mc.Segments = append(mc.Segments, ms)
	}
	return err
}

func (u Usecase) logSegment(log *zap.Logger, seg types.OutputSegment, status string, written int, err error) {
	fields := []zap.Field{
		zap.String("segment", seg.BaseName),
		zap.String("label", seg.Label),
		zap.Int("start_frame", seg.StartFrame),
		zap.Int("end_frame", seg.EndFrame),
		zap.Int("frames_written", written),
		zap.String("status", status),
	}
	if status == types.StatusWritten {
		log.Info("segment written", fields...)
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	log.Warn("segment incomplete", fields...)
}

func (u Usecase) count(status string, written int, err error) {
	m := u.d.Metrics
	if m == nil {
		return
	}
	m.SegmentsTotal.WithLabelValues(status).Inc()
	m.FramesWrittenTotal.Add(float64(written))
	m.DecodeFailuresTotal.Add(float64(countDecodeFailures(err)))
}

func countDecodeFailures(err error) int {
	if err == nil {
		return 0
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range j.Unwrap() {
			n += countDecodeFailures(e)
		}
		return n
	}
	if errors.Is(err, types.ErrDecodeFailure) {
		return 1
	}
	return 0
}

// Planned renders a plan as manifest segments without writing anything.
func Planned(in Input, p CasePlan) types.ManifestCase {
	mc := types.ManifestCase{
		CaseID:     in.Case.ID,
		Video:      in.Case.Video,
		Annotation: in.Case.Annotation,
		FPS:        p.Info.FPS,
		Frames:     p.Info.TotalFrames,
		Status:     types.StatusPlanned,
	}
	for i, s := range p.Segments {
		ms := manifestSegment(s)
		ms.Status = types.StatusPlanned
		if in.Mode == ModeFrames {
			dir := filepath.Dir(s.Path)
			for _, f := range p.Samples[i].Frames {
				ms.Stills = append(ms.Stills, relPath(in.OutDir, s.StillPath(dir, f, in.ImageExt)))
			}
		} else {
			ms.File = relPath(in.OutDir, s.Path)
		}
		mc.Segments = append(mc.Segments, ms)
	}
	return mc
}

func manifestSegment(s types.OutputSegment) types.ManifestSegment {
	return types.ManifestSegment{
		Label:      s.Label,
		Occurrence: s.Occurrence,
		StartFrame: s.StartFrame,
		EndFrame:   s.EndFrame,
	}
}

func caseStatus(segs []types.ManifestSegment, err error) string {
	if err != nil {
		return types.StatusFailed
	}
	for _, s := range segs {
		if s.Status != types.StatusWritten {
			return types.StatusTruncated
		}
	}
	return types.StatusWritten
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
