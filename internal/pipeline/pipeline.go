package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forPelevin/phasesplit/internal/config"
	"github.com/forPelevin/phasesplit/internal/dataset"
	"github.com/forPelevin/phasesplit/internal/domain/convention"
	"github.com/forPelevin/phasesplit/internal/domain/planner"
	"github.com/forPelevin/phasesplit/internal/domain/sampler"
	"github.com/forPelevin/phasesplit/internal/domain/splitter"
	"github.com/forPelevin/phasesplit/internal/ledger"
	"github.com/forPelevin/phasesplit/internal/logging"
	"github.com/forPelevin/phasesplit/internal/metrics"
	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/ports/adapters/csvtable"
	"github.com/forPelevin/phasesplit/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/phasesplit/internal/types"
	"github.com/forPelevin/phasesplit/internal/usecase"
)

type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// Out receives the dry-run plan.
	Out io.Writer
	// Deps replaces the ffmpeg and CSV adapters, mainly in tests.
	Deps *usecase.Deps
}

type job struct {
	in     usecase.Input
	resume bool
	plan   usecase.CasePlan
	key    string
	fp     string
}

// Run processes every case of a dataset. Case failures are contained and
// reported as a *types.RunError once all cases have been attempted; a path
// collision aborts the run before any output is written.
func Run(ctx context.Context, opts Options) (types.Manifest, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	reg, err := convention.NewRegistry(cfg.Conventions)
	if err != nil {
		return types.Manifest{}, err
	}
	conv, err := reg.Get(cfg.Convention)
	if err != nil {
		return types.Manifest{}, err
	}

	deps, rec := buildDeps(cfg, log, opts.Deps)
	uc := usecase.New(deps)

	outDir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return types.Manifest{}, err
	}
	runID := uuid.NewString()
	log = logging.WithRun(log, runID)

	found, err := dataset.Discover(conv, dataset.Options{
		VideoDir:       cfg.VideoDir,
		AnnotationDir:  cfg.AnnotationDir,
		AnnotationFile: cfg.AnnotationFile,
	}, deps.Tables)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("discover cases: %w", err)
	}
	log.Info("cases discovered", zap.Int("cases", len(found.Cases)), zap.Int("skipped", len(found.Skipped)))

	m := types.Manifest{RunID: runID, Convention: conv.Name, Mode: cfg.Mode, OutDir: outDir}
	for _, s := range found.Skipped {
		log.Warn("case skipped", zap.String("case_id", s.CaseID), zap.String("path", s.Path), zap.String("reason", s.Err.Error()))
		m.Cases = append(m.Cases, types.ManifestCase{
			CaseID: s.CaseID, Video: s.Path, Status: types.StatusSkipped, Reason: s.Err.Error(),
		})
		if rec != nil {
			rec.CasesTotal.WithLabelValues(types.StatusSkipped).Inc()
		}
	}

	// Every case is planned before anything is written so collisions
	// surface while the output tree is still untouched.
	paths := planner.NewRegistry()
	var jobs []job
	failed := 0
	for _, c := range found.Cases {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		in := caseInput(cfg, conv, c, outDir)
		plan, err := uc.Plan(ctx, in)
		if errors.Is(err, types.ErrPathCollision) {
			return m, &types.RunError{Failed: 1, Total: len(found.Cases), Err: err}
		}
		if err != nil {
			if ctx.Err() != nil {
				return m, ctx.Err()
			}
			failed++
			logging.WithCase(log, c.ID, conv.Name, filepath.Base(c.Video)).Error("case failed", zap.Error(err))
			m.Cases = append(m.Cases, types.ManifestCase{
				CaseID: c.ID, Video: c.Video, Annotation: c.Annotation, Status: types.StatusFailed, Reason: err.Error(),
			})
			if rec != nil {
				rec.CasesTotal.WithLabelValues(types.StatusFailed).Inc()
			}
			continue
		}
		if err := paths.Claim(c.ID, plan.Segments); err != nil {
			return m, &types.RunError{Failed: 1, Total: len(found.Cases), Err: err}
		}
		jobs = append(jobs, job{
			in:     in,
			resume: cfg.Resume,
			plan:   plan,
			key:    caseKey(outDir, cfg.Mode, conv.Name, c.ID),
			fp:     fingerprint(cfg, plan),
		})
	}

	if cfg.DryRun {
		for _, j := range jobs {
			mc := usecase.Planned(j.in, j.plan)
			printPlan(opts.Out, mc)
			m.Cases = append(m.Cases, mc)
		}
		return m, runError(failed, len(found.Cases))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return m, err
	}

	var led *ledger.Ledger
	if cfg.Ledger != "" {
		led, err = ledger.Open(cfg.Ledger, log)
		if err != nil {
			return m, err
		}
		defer led.Close()
		if err := led.StartRun(ctx, runID, conv.Name, cfg.Mode); err != nil {
			return m, err
		}
	}

	results := make([]types.ManifestCase, len(jobs))
	caseErrs := make([]error, len(jobs))
	queue := make(chan int)
	var wg sync.WaitGroup
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i], caseErrs[i] = runCase(ctx, uc, led, runID, jobs[i], log)
			}
		}()
	}
feed:
	for i := range jobs {
		select {
		case queue <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for i, mc := range results {
		if mc.CaseID == "" {
			mc = types.ManifestCase{
				CaseID: jobs[i].in.Case.ID, Video: jobs[i].in.Case.Video, Annotation: jobs[i].in.Case.Annotation,
				Status: types.StatusSkipped, Reason: "run cancelled before the case started",
			}
		}
		if caseErrs[i] != nil && !errors.Is(caseErrs[i], context.Canceled) {
			failed++
		}
		m.Cases = append(m.Cases, mc)
	}

	if err := writeManifest(outDir, m); err != nil {
		return m, err
	}
	log.Info("manifest written", zap.Int("cases", len(m.Cases)), zap.String("path", filepath.Join(outDir, "manifest.json")))

	if cfg.MetricsFile != "" && rec != nil {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("metrics textfile not written", zap.Error(err))
		}
	}

	status := "completed"
	if ctx.Err() != nil {
		status = "cancelled"
	} else if failed > 0 {
		status = "failed"
	}
	if led != nil {
		if err := led.FinishRun(context.WithoutCancel(ctx), runID, status); err != nil {
			log.Warn("ledger run not finished", zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return m, err
	}
	return m, runError(failed, len(found.Cases))
}

func runCase(ctx context.Context, uc usecase.Usecase, led *ledger.Ledger, runID string, j job, log *zap.Logger) (types.ManifestCase, error) {
	clog := logging.WithCase(log, j.in.Case.ID, j.in.Convention.Name, filepath.Base(j.in.Case.Video))
	if led != nil && j.resume {
		done, err := led.CaseComplete(ctx, j.key, j.fp)
		if err != nil {
			clog.Warn("ledger lookup failed, processing case", zap.Error(err))
		}
		if done {
			segs, err := led.Segments(ctx, j.key, j.fp)
			if err == nil {
				for i := range segs {
					if segs[i].File != "" {
						segs[i].File = relPath(j.in.OutDir, segs[i].File)
					}
				}
				clog.Info("case resumed from ledger", zap.Int("segments", len(segs)))
				return types.ManifestCase{
					CaseID: j.in.Case.ID, Video: j.in.Case.Video, Annotation: j.in.Case.Annotation,
					FPS: j.plan.Info.FPS, Frames: j.plan.Info.TotalFrames,
					Status: types.StatusResumed, Segments: segs,
				}, nil
			}
			clog.Warn("ledger segments unreadable, processing case", zap.Error(err))
		}
	}

	mc, err := uc.Execute(ctx, j.in, j.plan)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			clog.Warn("case interrupted", zap.Error(err))
		} else {
			clog.Error("case failed", zap.Error(err))
		}
	}
	if led == nil {
		return mc, err
	}

	lctx := context.WithoutCancel(ctx)
	recorded, complete := 0, err == nil
	for _, s := range mc.Segments {
		if s.Status == types.StatusFailed {
			complete = false
			continue
		}
		if s.File != "" {
			s.File = filepath.Join(j.in.OutDir, filepath.FromSlash(s.File))
		}
		if s.Status != types.StatusWritten && s.Status != types.StatusTruncated {
			continue
		}
		if rerr := led.RecordSegment(lctx, runID, j.key, j.fp, s); rerr != nil {
			clog.Warn("ledger segment not recorded", zap.Error(rerr))
			complete = false
			continue
		}
		recorded++
	}
	if complete {
		if cerr := led.CompleteCase(lctx, runID, j.key, j.fp, recorded); cerr != nil {
			clog.Warn("ledger case not completed", zap.Error(cerr))
		}
	}
	return mc, err
}

func buildDeps(cfg *config.Config, log *zap.Logger, override *usecase.Deps) (usecase.Deps, *metrics.Recorder) {
	if override != nil {
		d := *override
		if d.Logger == nil {
			d.Logger = log
		}
		return d, d.Metrics
	}
	ff := ffmpeg.New(cfg.FFmpeg.Path, cfg.FFmpeg.ProbePath, ffmpeg.EncodeOptions{
		Codec:  cfg.FFmpeg.VideoCodec,
		Preset: cfg.FFmpeg.Preset,
		CRF:    cfg.FFmpeg.CRF,
	})
	rec := metrics.New()
	return usecase.Deps{
		Decoder: ff,
		Encoder: ff.Encoder(),
		Images:  ff,
		Tables:  csvtable.New(),
		Logger:  log,
		Metrics: rec,
	}, rec
}

func caseInput(cfg *config.Config, conv *convention.Convention, c dataset.Case, outDir string) usecase.Input {
	return usecase.Input{
		Case:       c,
		Convention: conv,
		Mode:       cfg.Mode,
		OutDir:     outDir,
		Tag:        cfg.Tag,
		Ext:        strings.TrimPrefix(cfg.Ext, "."),
		ImageExt:   strings.TrimPrefix(cfg.ImageExt, "."),
		Policy:     planner.Policy(cfg.Numbering),
		Sampling: sampler.Options{
			MaxFrames:  cfg.Sampling.MaxFrames,
			MinSpacing: cfg.Sampling.MinSpacing,
		},
		Read: splitter.Options{
			Strategy:      splitter.Strategy(cfg.Strategy),
			SeekThreshold: cfg.SeekThreshold,
		},
	}
}

func caseKey(outDir, mode, conv, caseID string) string {
	return strings.Join([]string{outDir, mode, conv, caseID}, "|")
}

// fingerprint identifies everything that shapes a case's output, so a
// resumed run redoes cases whose plan or encoding changed.
func fingerprint(cfg *config.Config, p usecase.CasePlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d|%s|%d|%g|", cfg.Mode, cfg.FFmpeg.VideoCodec, cfg.FFmpeg.Preset, cfg.FFmpeg.CRF,
		cfg.ImageExt, cfg.Sampling.MaxFrames, cfg.Sampling.MinSpacing)
	fmt.Fprintf(&b, "%g|%d|%dx%d|", p.Info.FPS, p.Info.TotalFrames, p.Info.Width, p.Info.Height)
	for _, s := range p.Segments {
		fmt.Fprintf(&b, "%s:%d-%d;", s.Path, s.StartFrame, s.EndFrame)
	}
	return hash(b.String())
}

func runError(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return &types.RunError{Failed: failed, Total: total}
}

func writeManifest(outDir string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(outDir, "manifest.json"), b, 0o644)
}

func printPlan(w io.Writer, mc types.ManifestCase) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "case %s (%s, %d frames @ %g fps)\n", mc.CaseID, filepath.Base(mc.Video), mc.Frames, mc.FPS)
	for _, s := range mc.Segments {
		dest := s.File
		if dest == "" {
			dest = fmt.Sprintf("%d stills", len(s.Stills))
			if len(s.Stills) > 0 {
				dest += " in " + filepath.Dir(filepath.FromSlash(s.Stills[0]))
			}
		}
		fmt.Fprintf(w, "  %6d-%-6d %-24s %s\n", s.StartFrame, s.EndFrame, s.Label, dest)
	}
}

func relPath(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.Decoder = (*ffmpeg.Adapter)(nil)
var _ ports.ImageWriter = (*ffmpeg.Adapter)(nil)
var _ ports.Encoder = (*ffmpeg.Encoder)(nil)
var _ ports.TableReader = (*csvtable.Reader)(nil)
