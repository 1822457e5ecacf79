// Package export renders a case timeline as a CSV table.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Header is the column layout of timeline tables.
var Header = []string{"case", "phase name", "Start Frame", "End Frame", "Start Time (s)", "End Time (s)"}

// FileName is the name of the timeline table of caseID.
func FileName(caseID string) string {
	return caseID + "_phases_with_idle.csv"
}

// WriteTimeline writes one row per interval. Untimed intervals leave the
// time columns empty.
func WriteTimeline(w io.Writer, ivs []types.PhaseInterval) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, iv := range ivs {
		rec := []string{
			iv.CaseID,
			iv.Label,
			strconv.Itoa(iv.StartFrame),
			strconv.Itoa(iv.EndFrame),
			"",
			"",
		}
		if iv.HasTime {
			rec[4] = fmtSeconds(iv.StartTime)
			rec[5] = fmtSeconds(iv.EndTime)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTimelineFile writes the table next to dir and returns its path.
func WriteTimelineFile(dir, caseID string, ivs []types.PhaseInterval) (string, error) {
	path := filepath.Join(dir, FileName(caseID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create timeline: %w", err)
	}
	if err := WriteTimeline(f, ivs); err != nil {
		f.Close()
		return "", fmt.Errorf("write timeline: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close timeline: %w", err)
	}
	return path, nil
}

func fmtSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
