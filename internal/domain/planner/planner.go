// Package planner assigns deterministic output identities to the intervals
// of a case.
package planner

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Policy decides whether the first occurrence of a label carries a suffix.
type Policy string

const (
	// UnnumberedFirst names occurrences X, X_2, X_3, ...
	UnnumberedFirst Policy = "unnumbered-first"
	// NumberedFirst names occurrences X_1, X_2, X_3, ...
	NumberedFirst Policy = "numbered-first"
)

func (p Policy) Valid() bool { return p == UnnumberedFirst || p == NumberedFirst }

type Options struct {
	OutDir string
	Tag    string
	Ext    string
	Policy Policy
}

// Planner holds the occurrence counters of one case.
type Planner struct {
	caseID string
	opts   Options
	counts map[string]int
	paths  map[string]struct{}
}

func New(caseID string, opts Options) *Planner {
	if opts.Policy == "" {
		opts.Policy = UnnumberedFirst
	}
	return &Planner{
		caseID: caseID,
		opts:   opts,
		counts: make(map[string]int),
		paths:  make(map[string]struct{}),
	}
}

// Plan assigns a segment to every interval in order.
func (p *Planner) Plan(ivs []types.PhaseInterval) ([]types.OutputSegment, error) {
	out := make([]types.OutputSegment, 0, len(ivs))
	for _, iv := range ivs {
		seg, err := p.Assign(iv)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

// Assign increments the interval label's counter and names the segment.
func (p *Planner) Assign(iv types.PhaseInterval) (types.OutputSegment, error) {
	p.counts[iv.Label]++
	n := p.counts[iv.Label]

	label := PathLabel(iv.Label)
	base := p.opts.Tag + "_" + CaseToken(p.caseID) + "_" + label
	if n > 1 || p.opts.Policy == NumberedFirst {
		base += "_" + strconv.Itoa(n)
	}
	path := filepath.Join(p.opts.OutDir, label, base)
	if p.opts.Ext != "" {
		path += "." + p.opts.Ext
	}
	if _, dup := p.paths[path]; dup {
		return types.OutputSegment{}, fmt.Errorf("%w: %s", types.ErrPathCollision, path)
	}
	p.paths[path] = struct{}{}

	return types.OutputSegment{
		CaseID:     p.caseID,
		Label:      iv.Label,
		Occurrence: n,
		StartFrame: iv.StartFrame,
		EndFrame:   iv.EndFrame,
		BaseName:   base,
		Path:       path,
	}, nil
}

// Counts returns a copy of the per-label occurrence counters.
func (p *Planner) Counts() map[string]int {
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// CaseToken renders a numeric case id as ID%04d and keeps other ids as given.
func CaseToken(caseID string) string {
	if n, err := strconv.Atoi(caseID); err == nil && n >= 0 {
		return fmt.Sprintf("ID%04d", n)
	}
	return caseID
}

// PathLabel makes a label safe as a file and directory name. Canonical
// labels are returned unchanged.
func PathLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(label) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "Unlabeled"
	}
	return s
}

// Registry tracks destinations across every case of a run.
type Registry struct {
	mu    sync.Mutex
	owner map[string]string
}

func NewRegistry() *Registry {
	return &Registry{owner: make(map[string]string)}
}

// Claim records the segments of a case, failing if any path belongs to
// another case. Nothing is recorded on failure.
func (r *Registry) Claim(caseID string, segs []types.OutputSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range segs {
		if owner, ok := r.owner[s.Path]; ok && owner != caseID {
			return fmt.Errorf("%w: %s claimed by case %s and case %s", types.ErrPathCollision, s.Path, owner, caseID)
		}
	}
	for _, s := range segs {
		r.owner[s.Path] = caseID
	}
	return nil
}
