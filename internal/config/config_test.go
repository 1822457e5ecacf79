package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.VideoDir = t.TempDir()
	cfg.AnnotationDir = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "cataract1k", cfg.Convention)
	assert.Equal(t, "mp4", cfg.Ext)
	assert.Equal(t, "png", cfg.ImageExt)
	assert.Equal(t, 15, cfg.Sampling.MaxFrames)
	assert.InDelta(t, 0.3, cfg.Sampling.MinSpacing, 1e-9)
	assert.Equal(t, 250, cfg.SeekThreshold)
	assert.Equal(t, "unnumbered-first", cfg.Numbering)
	assert.Equal(t, 18, cfg.FFmpeg.CRF)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errorText []string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:      "missing video dir",
			mutate:    func(c *Config) { c.VideoDir = "" },
			errorText: []string{"video dir is required"},
		},
		{
			name:      "unknown convention",
			mutate:    func(c *Config) { c.Convention = "nope" },
			errorText: []string{`unknown convention "nope"`},
		},
		{
			name: "master table needs annotation file",
			mutate: func(c *Config) {
				c.Convention = "cataract101"
			},
			errorText: []string{"annotation file is required"},
		},
		{
			name: "collects every problem",
			mutate: func(c *Config) {
				c.Numbering = "sometimes"
				c.Strategy = "random"
				c.Workers = 0
				c.Sampling.MaxFrames = 0
				c.FFmpeg.CRF = 60
				c.Log.Format = "xml"
			},
			errorText: []string{
				"invalid numbering 'sometimes'",
				"invalid strategy 'random'",
				"workers must be at least 1",
				"max frames must be positive",
				"CRF must be between 0 and 51",
				"invalid format 'xml'",
			},
		},
		{
			name:      "resume without ledger",
			mutate:    func(c *Config) { c.Resume = true },
			errorText: []string{"resume needs a ledger path"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.errorText) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, s := range tt.errorText {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestLoadFile_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phasesplit.yaml")
	yml := `
convention: cataract21
video_dir: /data/videos
sampling:
  max_frames: 5
conventions:
  - name: mydata
    tag: MyData
    shape: events
    layout: master
    delimiter: ";"
    header: true
    fields: {case: vid, label: phase, start: frame}
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cataract21", cfg.Convention)
	assert.Equal(t, 5, cfg.Sampling.MaxFrames)
	assert.InDelta(t, 0.3, cfg.Sampling.MinSpacing, 1e-9, "unset keys keep defaults")
	require.Len(t, cfg.Conventions, 1)
	assert.Equal(t, "vid", cfg.Conventions[0].Fields.Case)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1,2"), 0o644))
	_, err = LoadFile(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PHASESPLIT_CONVENTION", "aras")
	t.Setenv("PHASESPLIT_WORKERS", "4")
	t.Setenv("PHASESPLIT_FFMPEG_CRF", "23")
	t.Setenv("PHASESPLIT_SAMPLING_MIN_SPACING", "1.5")

	cfg := DefaultConfig()
	cfg.OutDir = "from-file"
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, "aras", cfg.Convention)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 23, cfg.FFmpeg.CRF)
	assert.InDelta(t, 1.5, cfg.Sampling.MinSpacing, 1e-9)
	assert.Equal(t, "from-file", cfg.OutDir, "unset variables leave values alone")
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.Path)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("PHASESPLIT_WORKERS", "many")
	require.Error(t, ApplyEnv(DefaultConfig()))
}
