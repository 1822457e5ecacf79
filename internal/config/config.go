// Package config holds the run configuration. Values are layered: defaults,
// then a YAML file, then PHASESPLIT_* environment variables, then the flags
// the user set explicitly.
package config

import (
	"github.com/forPelevin/phasesplit/internal/domain/convention"
)

// Mode selects what is produced for each segment.
const (
	ModeClips  = "clips"
	ModeFrames = "frames"
)

type Config struct {
	Convention string `yaml:"convention" env:"CONVENTION"`
	// Tag overrides the convention's dataset tag in output names.
	Tag string `yaml:"tag" env:"TAG"`
	// Mode is set by the command being run, not by files.
	Mode string `yaml:"-"`

	VideoDir       string `yaml:"video_dir" env:"VIDEO_DIR"`
	AnnotationDir  string `yaml:"annotation_dir" env:"ANNOTATION_DIR"`
	AnnotationFile string `yaml:"annotation_file" env:"ANNOTATION_FILE"` // master-table conventions
	OutDir         string `yaml:"out_dir" env:"OUT_DIR"`

	Ext      string `yaml:"ext" env:"EXT"`
	ImageExt string `yaml:"image_ext" env:"IMAGE_EXT"`

	Numbering     string `yaml:"numbering" env:"NUMBERING"` // "unnumbered-first", "numbered-first"
	Strategy      string `yaml:"strategy" env:"STRATEGY"`   // "auto", "streaming", "seekable"
	SeekThreshold int    `yaml:"seek_threshold" env:"SEEK_THRESHOLD"`
	Workers       int    `yaml:"workers" env:"WORKERS"`

	Sampling SamplingConfig `yaml:"sampling" envPrefix:"SAMPLING_"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg" envPrefix:"FFMPEG_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`

	// Ledger is the SQLite resume database; empty disables it.
	Ledger      string `yaml:"ledger" env:"LEDGER"`
	Resume      bool   `yaml:"resume" env:"RESUME"`
	MetricsFile string `yaml:"metrics_file" env:"METRICS_FILE"`
	DryRun      bool   `yaml:"dry_run" env:"DRY_RUN"`

	// Conventions declares additional annotation conventions.
	Conventions []convention.Convention `yaml:"conventions"`
}

type SamplingConfig struct {
	MaxFrames  int     `yaml:"max_frames" env:"MAX_FRAMES"`
	MinSpacing float64 `yaml:"min_spacing" env:"MIN_SPACING"` // seconds
}

type FFmpegConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	ProbePath  string `yaml:"probe_path" env:"PROBE_PATH"`
	VideoCodec string `yaml:"video_codec" env:"VIDEO_CODEC"`
	Preset     string `yaml:"preset" env:"PRESET"`
	CRF        int    `yaml:"crf" env:"CRF"` // -1 = encoder default
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "console", "json"
}

func DefaultConfig() *Config {
	return &Config{
		Convention: "cataract1k",
		Mode:       ModeClips,
		OutDir:     "out",

		Ext:      "mp4",
		ImageExt: "png",

		Numbering:     "unnumbered-first",
		Strategy:      "auto",
		SeekThreshold: 250,
		Workers:       1,

		Sampling: SamplingConfig{
			MaxFrames:  15,
			MinSpacing: 0.3,
		},
		FFmpeg: FFmpegConfig{
			Path:       "ffmpeg",
			ProbePath:  "ffprobe",
			VideoCodec: "libx264",
			Preset:     "veryfast",
			CRF:        18,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Copy returns a deep copy.
func (c *Config) Copy() *Config {
	cp := *c
	cp.Conventions = append([]convention.Convention(nil), c.Conventions...)
	return &cp
}

func NumberingValues() []string { return []string{"unnumbered-first", "numbered-first"} }
func StrategyValues() []string  { return []string{"auto", "streaming", "seekable"} }
func FormatValues() []string    { return []string{"console", "json"} }
func LevelValues() []string     { return []string{"debug", "info", "warn", "error"} }

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}
