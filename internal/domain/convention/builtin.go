package convention

import (
	"fmt"
	"sort"
	"strings"
)

// Builtin returns the conventions of the supported public datasets.
func Builtin() map[string]Convention {
	return map[string]Convention{
		"cataract1k": {
			Name:   "cataract1k",
			Tag:    "Cataract1k",
			Shape:  Intervals,
			Layout: PerCase,
			Header: true,
			Fields: Fields{
				Case:      "caseId",
				Label:     "comment",
				Start:     "frame",
				End:       "endFrame",
				StartTime: "sec",
				EndTime:   "endSec",
			},
			AnnotationSuffix: "_annotations_phases.csv",
			Vocabulary:       "interval",
		},
		"cataract101": {
			Name:      "cataract101",
			Tag:       "Cataract101",
			Shape:     Events,
			Layout:    Master,
			Delimiter: ";",
			Header:    true,
			Fields: Fields{
				Case:  "VideoID",
				Label: "Phase",
				Start: "FrameNo",
			},
			Vocabulary: "numeric",
		},
		"cataract21": {
			Name:   "cataract21",
			Tag:    "Cataract21",
			Shape:  FrameStream,
			Layout: Sidecar,
			Fields: Fields{
				Start: "0",
				Label: "1",
			},
			AnnotationSuffix: ".csv",
			Vocabulary:       "framestream",
		},
		// Phase tables as written by `phasesplit timeline`, one or more
		// cases per file.
		"phasecsv": {
			Name:   "phasecsv",
			Tag:    "Phases",
			Shape:  Intervals,
			Layout: Master,
			Header: true,
			Fields: Fields{
				Case:      "case",
				Label:     "phase name",
				Start:     "Start Frame",
				End:       "End Frame",
				StartTime: "Start Time (s)",
				EndTime:   "End Time (s)",
			},
			Vocabulary: "identity",
		},
		"aras": {
			Name:   "aras",
			Tag:    "ARAS",
			Shape:  Intervals,
			Layout: Sidecar,
			Header: true,
			Fields: Fields{
				Label:     "comment",
				StartTime: "sec",
				EndTime:   "endsec",
			},
			AnnotationSuffix: "_phases.csv",
			CaseFromStem:     true,
			UseTime:          true,
			Vocabulary:       "identity",
		},
	}
}

// Registry resolves conventions by name; custom conventions shadow built-ins.
type Registry struct {
	byName map[string]Convention
}

func NewRegistry(custom []Convention) (*Registry, error) {
	r := &Registry{byName: Builtin()}
	for _, c := range custom {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		r.byName[strings.ToLower(c.Name)] = c
	}
	return r, nil
}

func (r *Registry) Get(name string) (*Convention, error) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown convention %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return c.Prepared(), nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
