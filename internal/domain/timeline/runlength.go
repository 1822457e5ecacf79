package timeline

import (
	"fmt"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Compress collapses a per-frame label stream into intervals, starting a new
// interval wherever the label changes. labels[i] is the label of frame i.
func Compress(caseID string, labels []string, fps float64) ([]types.PhaseInterval, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: case %s", types.ErrEmptyLabelStream, caseID)
	}
	var out []types.PhaseInterval
	start := 0
	for i := 1; i <= len(labels); i++ {
		if i < len(labels) && labels[i] == labels[start] {
			continue
		}
		iv := types.PhaseInterval{
			CaseID:     caseID,
			Label:      labels[start],
			StartFrame: start,
			EndFrame:   i - 1,
		}
		stamp(&iv, fps)
		out = append(out, iv)
		start = i
	}
	return out, nil
}
