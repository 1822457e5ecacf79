package config

import (
	"fmt"
	"strings"

	"github.com/forPelevin/phasesplit/internal/domain/convention"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if c.Mode != ModeClips && c.Mode != ModeFrames {
		errors = append(errors, fmt.Sprintf("invalid mode '%s'", c.Mode))
	}
	if c.VideoDir == "" {
		errors = append(errors, "video dir is required")
	}
	if c.OutDir == "" {
		errors = append(errors, "out dir is required")
	}

	reg, err := convention.NewRegistry(c.Conventions)
	if err != nil {
		errors = append(errors, fmt.Sprintf("custom convention: %v", err))
	} else if conv, err := reg.Get(c.Convention); err != nil {
		errors = append(errors, err.Error())
	} else {
		switch conv.Layout {
		case convention.Master:
			if c.AnnotationFile == "" {
				errors = append(errors, fmt.Sprintf("convention %s reads one master table: annotation file is required", conv.Name))
			}
		case convention.PerCase:
			if c.AnnotationDir == "" {
				errors = append(errors, fmt.Sprintf("convention %s needs an annotation dir", conv.Name))
			}
		}
	}

	if strings.TrimSpace(c.Ext) == "" {
		errors = append(errors, "clip extension is required")
	}
	if strings.TrimSpace(c.ImageExt) == "" {
		errors = append(errors, "image extension is required")
	}
	if !oneOf(c.Numbering, NumberingValues()) {
		errors = append(errors, fmt.Sprintf("invalid numbering '%s', must be one of: %s",
			c.Numbering, strings.Join(NumberingValues(), ", ")))
	}
	if !oneOf(c.Strategy, StrategyValues()) {
		errors = append(errors, fmt.Sprintf("invalid strategy '%s', must be one of: %s",
			c.Strategy, strings.Join(StrategyValues(), ", ")))
	}
	if c.SeekThreshold < 0 {
		errors = append(errors, "seek threshold cannot be negative")
	}
	if c.Workers < 1 {
		errors = append(errors, "workers must be at least 1")
	}
	if c.Resume && c.Ledger == "" {
		errors = append(errors, "resume needs a ledger path")
	}

	if err := c.Sampling.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("sampling config: %v", err))
	}
	if err := c.FFmpeg.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("ffmpeg config: %v", err))
	}
	if err := c.Log.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("log config: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

func (sc *SamplingConfig) Validate() error {
	var errors []string
	if sc.MaxFrames <= 0 {
		errors = append(errors, "max frames must be positive")
	}
	if sc.MinSpacing < 0 {
		errors = append(errors, "min spacing cannot be negative")
	}
	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, ", "))
	}
	return nil
}

func (fc *FFmpegConfig) Validate() error {
	var errors []string
	if fc.Path == "" {
		errors = append(errors, "ffmpeg path is required")
	}
	if fc.ProbePath == "" {
		errors = append(errors, "ffprobe path is required")
	}
	if fc.VideoCodec == "" {
		errors = append(errors, "video codec is required")
	}
	if fc.CRF < -1 || fc.CRF > 51 {
		errors = append(errors, "CRF must be between 0 and 51 (or -1 for the encoder default)")
	}
	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, ", "))
	}
	return nil
}

func (lc *LogConfig) Validate() error {
	var errors []string
	if !oneOf(lc.Level, LevelValues()) {
		errors = append(errors, fmt.Sprintf("invalid level '%s'", lc.Level))
	}
	if !oneOf(lc.Format, FormatValues()) {
		errors = append(errors, fmt.Sprintf("invalid format '%s'", lc.Format))
	}
	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, ", "))
	}
	return nil
}
