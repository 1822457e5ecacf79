package vocabulary

import "testing"

func TestNormalize_Table(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		raw   string
		want  string
	}{
		{"interval known", Interval, "Phacoemulsification", "Phaco"},
		{"interval slash", Interval, "Irrigation/Aspiration", "IrrigationAspiration"},
		{"interval unknown passes", Interval, "Suturing", "Suturing"},
		{"numeric idle", NumericCoded, "0", "Idle"},
		{"numeric ten", NumericCoded, "10", "TonifyingAntibiotic"},
		{"numeric trims", NumericCoded, " 3 ", "Capsulorhexis"},
		{"stream german", FrameStream, "Hydrodissektion", "Hydrodissection"},
		{"stream not initialized", FrameStream, "not_initialized", "Idle"},
		{"identity", Identity, "Anything", "Anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.table.Normalize(tt.raw); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalize_TablesDoNotCross(t *testing.T) {
	// "Phako" is a frame-stream label only.
	if got := Interval.Normalize("Phako"); got != "Phako" {
		t.Fatalf("interval table mapped a frame-stream label: %q", got)
	}
	if got := NumericCoded.Normalize("Phacoemulsification"); got != "Phacoemulsification" {
		t.Fatalf("numeric table mapped an interval label: %q", got)
	}
}

func TestMerge_DoesNotMutate(t *testing.T) {
	m := Interval.Merge(map[string]string{"Incision": "MainIncision"})
	if m.Normalize("Incision") != "MainIncision" {
		t.Fatalf("override not applied")
	}
	if Interval.Normalize("Incision") != "Incision" {
		t.Fatalf("base table mutated")
	}
}
