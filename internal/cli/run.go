package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/forPelevin/phasesplit/internal/config"
	"github.com/forPelevin/phasesplit/internal/logging"
	"github.com/forPelevin/phasesplit/internal/pipeline"
)

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Write one clip per phase interval of every case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, config.ModeClips)
		},
	}
	addRunFlags(cmd.Flags())
	cmd.Flags().String("ext", "", "Clip container extension (default mp4)")
	cmd.Flags().String("codec", "", "ffmpeg video codec (default libx264)")
	cmd.Flags().String("preset", "", "Encoder preset (default veryfast)")
	cmd.Flags().Int("crf", 0, "Encoder CRF, -1 for the encoder default (default 18)")
	return cmd
}

func newFramesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Write sampled still frames per phase interval of every case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, config.ModeFrames)
		},
	}
	addRunFlags(cmd.Flags())
	cmd.Flags().String("image-ext", "", "Still image extension (default png)")
	cmd.Flags().Int("max-frames", 0, "Most stills per segment (default 15)")
	cmd.Flags().Float64("min-spacing", 0, "Least seconds between two stills (default 0.3)")
	return cmd
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String("video-dir", "", "Directory holding the case videos")
	fs.String("annotation-dir", "", "Directory holding per-case annotations")
	fs.String("annotation-file", "", "Master annotation table (cataract101-style conventions)")
	fs.String("out", "", "Output root (default out)")
	fs.String("tag", "", "Dataset tag used in output names (default: the convention's)")
	fs.String("numbering", "", "Occurrence numbering: unnumbered-first or numbered-first")
	fs.String("strategy", "", "Frame reading: auto, streaming or seekable")
	fs.Int("seek-threshold", 0, "Gap in frames above which auto seeks (default 250)")
	fs.Int("workers", 0, "Cases processed in parallel (default 1)")
	fs.String("ffmpeg", "", "ffmpeg binary")
	fs.String("ffprobe", "", "ffprobe binary")
	fs.String("ledger", "", "SQLite ledger of completed output")
	fs.Bool("resume", false, "Skip cases the ledger records as complete")
	fs.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "console or json")
	fs.Bool("dry-run", false, "Print the plan without decoding any video")

}

// loadConfig layers defaults, the config file, the environment and the
// flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	mergeFlags(cmd.Flags(), cfg)
	return cfg, nil
}

// mergeFlags copies only the flags the user set explicitly.
func mergeFlags(fs *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if fs.Changed(name) {
			*dst, _ = fs.GetInt(name)
		}
	}
	flag := func(name string, dst *bool) {
		if fs.Changed(name) {
			*dst, _ = fs.GetBool(name)
		}
	}

	str("convention", &cfg.Convention)
	str("video-dir", &cfg.VideoDir)
	str("annotation-dir", &cfg.AnnotationDir)
	str("annotation-file", &cfg.AnnotationFile)
	str("out", &cfg.OutDir)
	str("tag", &cfg.Tag)
	str("ext", &cfg.Ext)
	str("image-ext", &cfg.ImageExt)
	str("numbering", &cfg.Numbering)
	str("strategy", &cfg.Strategy)
	num("seek-threshold", &cfg.SeekThreshold)
	num("workers", &cfg.Workers)
	num("max-frames", &cfg.Sampling.MaxFrames)
	if fs.Changed("min-spacing") {
		cfg.Sampling.MinSpacing, _ = fs.GetFloat64("min-spacing")
	}
	str("ffmpeg", &cfg.FFmpeg.Path)
	str("ffprobe", &cfg.FFmpeg.ProbePath)
	str("codec", &cfg.FFmpeg.VideoCodec)
	str("preset", &cfg.FFmpeg.Preset)
	num("crf", &cfg.FFmpeg.CRF)
	str("ledger", &cfg.Ledger)
	flag("resume", &cfg.Resume)
	str("metrics-file", &cfg.MetricsFile)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	flag("dry-run", &cfg.DryRun)
}

func run(cmd *cobra.Command, mode string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Mode = mode
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()
	log.Info("starting run",
		zap.String("mode", cfg.Mode),
		zap.String("convention", cfg.Convention),
		zap.String("video_dir", cfg.VideoDir),
		zap.String("out", cfg.OutDir),
		zap.Bool("dry_run", cfg.DryRun),
	)

	_, err = pipeline.Run(cmd.Context(), pipeline.Options{
		Config: cfg,
		Logger: log,
		Out:    cmd.OutOrStdout(),
	})
	return err
}
