package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forPelevin/phasesplit/internal/dataset"
	"github.com/forPelevin/phasesplit/internal/domain/convention"
	"github.com/forPelevin/phasesplit/internal/domain/export"
	"github.com/forPelevin/phasesplit/internal/ports/adapters/csvtable"
	"github.com/forPelevin/phasesplit/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/phasesplit/internal/types"
)

func newTimelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <annotation>",
		Short: "Write the gap-free phase table of an annotation without touching video",
		Args:  cobra.ExactArgs(1),
		RunE:  runTimeline,
	}
	cmd.Flags().String("case", "", "Case id (default: parsed from the annotation name)")
	cmd.Flags().String("video", "", "Probe this video for frame count and rate")
	cmd.Flags().Int("total-frames", 0, "Frame count of the video, closes the timeline with Idle")
	cmd.Flags().Float64("fps", 0, "Frame rate, fills the time columns")
	cmd.Flags().String("out-dir", "", "Directory for <case>_phases_with_idle.csv (default: beside the annotation)")
	return cmd
}

func runTimeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := convention.NewRegistry(cfg.Conventions)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conv, err := reg.Get(cfg.Convention)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var info types.StreamInfo
	if video, _ := cmd.Flags().GetString("video"); video != "" {
		info, err = ffmpeg.New(cfg.FFmpeg.Path, cfg.FFmpeg.ProbePath, ffmpeg.EncodeOptions{}).Probe(cmd.Context(), video)
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("total-frames") {
		info.TotalFrames, _ = cmd.Flags().GetInt("total-frames")
	}
	if cmd.Flags().Changed("fps") {
		info.FPS, _ = cmd.Flags().GetFloat64("fps")
	}

	path := args[0]
	tab, err := csvtable.New().ReadTable(path, conv.Comma(), conv.Header)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrMalformedAnnotation, err)
	}

	groups := map[string][]types.Row{}
	var ids []string
	if conv.Layout == convention.Master {
		if groups, ids, err = conv.GroupByCase(tab.Rows); err != nil {
			return fmt.Errorf("%w: %v", types.ErrMalformedAnnotation, err)
		}
	} else {
		id, _ := cmd.Flags().GetString("case")
		if id == "" {
			if id, err = dataset.CaseID(path, conv.CaseFromStem); err != nil {
				return fmt.Errorf("%w (set --case)", err)
			}
		}
		groups[id] = tab.Rows
		ids = []string{id}
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}
	for _, id := range ids {
		ivs, err := conv.Timeline(id, groups[id], info)
		if err != nil {
			return err
		}
		written, err := export.WriteTimelineFile(outDir, id, ivs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), filepath.ToSlash(written))
	}
	return nil
}
