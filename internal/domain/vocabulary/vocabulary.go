// Package vocabulary maps the raw phase labels of each annotation
// convention to canonical names.
package vocabulary

import "strings"

// Table maps raw labels to canonical labels for one convention.
type Table map[string]string

// Normalize returns the canonical label for raw. Unknown labels pass
// through trimmed but otherwise unchanged.
func (t Table) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if v, ok := t[raw]; ok {
		return v
	}
	return raw
}

// Interval is the Cataract-1K interval-table vocabulary.
var Interval = Table{
	"Idle":                      "Idle",
	"Incision":                  "Incision",
	"Viscoelastic":              "Viscoelastic",
	"Capsulorhexis":             "Capsulorhexis",
	"Hydrodissection":           "Hydrodissection",
	"Phacoemulsification":       "Phaco",
	"Irrigation/Aspiration":     "IrrigationAspiration",
	"Capsule Pulishing":         "CortexRemoval",
	"Lens Implantation":         "LensImplantation",
	"Lens positioning":          "LensPositioning",
	"Viscoelastic_Suction":      "ViscoelasticSuction",
	"Tonifying/Antibiotics":     "TonifyingAntibiotics",
	"Anterior_Chamber Flushing": "AnteriorChamberFlushing",
}

// NumericCoded is the Cataract-101 vocabulary; phases are coded 0..10.
var NumericCoded = Table{
	"0":  "Idle",
	"1":  "Incision",
	"2":  "Viscoelastic",
	"3":  "Capsulorhexis",
	"4":  "Hydrodissection",
	"5":  "Phacoemulsification",
	"6":  "IrrigationAspiration",
	"7":  "CortexRemoval",
	"8":  "LensImplantation",
	"9":  "ViscoelasticSuction",
	"10": "TonifyingAntibiotic",
}

// FrameStream is the Cataract-21 per-frame vocabulary (German phase names).
var FrameStream = Table{
	"not_initialized":       "Idle",
	"Incision":              "Incision",
	"Viscoelasticum":        "Viscoelastic",
	"Rhexis":                "Capsulorhexis",
	"Hydrodissektion":       "Hydrodissection",
	"Phako":                 "Phaco",
	"Irrigation-Aspiration": "Irrigation",
	"Kapselpolishing":       "CortexRemoval",
	"Linsenimplantation":    "LensImplantation",
	"Visco-Absaugung":       "ViscoelasticSuction",
	"Tonisieren":            "TonifyingAntibiotic_1",
	"Antibiotikum":          "TonifyingAntibiotic_2",
}

// Identity keeps every label as annotated.
var Identity = Table{}

// Lookup returns a built-in table by name.
func Lookup(name string) (Table, bool) {
	switch strings.ToLower(name) {
	case "interval", "cataract1k":
		return Interval, true
	case "numeric", "cataract101":
		return NumericCoded, true
	case "framestream", "cataract21":
		return FrameStream, true
	case "identity", "none", "":
		return Identity, true
	}
	return nil, false
}

// Merge returns a copy of t with overrides applied.
func (t Table) Merge(overrides map[string]string) Table {
	out := make(Table, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
