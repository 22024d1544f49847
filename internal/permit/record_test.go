package permit

import (
	"testing"
	"time"

	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

func newTestEnricher() *Enricher {
	return NewEnricher(ref.New(vocab.Default()))
}

func TestEnrichDerivesKeys(t *testing.T) {
	e := newTestEnricher()
	rec, ok := e.Enrich(RawRow{
		District:        "SPU",
		Sheet:           " pkm ",
		Reference:       " MPSP/15/U24-2511/0120 - PKM ",
		Applicant:       "Tetuan ABC Sdn Bhd",
		Lot:             "Lot 1234 & 1235 Mukim 15",
		ProcessDeadline: "15/01/2026 (PB)",
		ReviewDeadline:  "02/01/2026",
	})
	if !ok {
		t.Fatal("expected record to be kept")
	}
	if rec.SheetName != "PKM" {
		t.Errorf("SheetName = %q", rec.SheetName)
	}
	if rec.Display != "MBSP/15/U24-2511/0120-PKM" {
		t.Errorf("Display = %q", rec.Display)
	}
	if rec.Parent != "MPSP/15/U24-2511/0120" {
		t.Errorf("Parent = %q", rec.Parent)
	}
	if rec.ParentKey != "mbsp15u2425110120" {
		t.Errorf("ParentKey = %q", rec.ParentKey)
	}
	if !rec.Codes.Has("PKM") || len(rec.Codes) != 1 {
		t.Errorf("Codes = %v", rec.Codes.Sorted())
	}
	if rec.ApplicantKey != "abc" {
		t.Errorf("ApplicantKey = %q", rec.ApplicantKey)
	}
	if len(rec.LotTokens) != 2 {
		t.Errorf("LotTokens = %v", rec.LotTokens)
	}
	if !rec.ProcessDate.Equal(time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ProcessDate = %v", rec.ProcessDate)
	}
	if rec.OwnerCode != "PB" {
		t.Errorf("OwnerCode = %q", rec.OwnerCode)
	}
	if !rec.HasRef || rec.Ref.TailKey() != "120" || rec.Ref.Series != "U24-2511" {
		t.Errorf("Ref = %+v (has %v)", rec.Ref, rec.HasRef)
	}
	if rec.Concurrent {
		t.Error("PKM row must not be concurrent")
	}
}

func TestEnrichConcurrent(t *testing.T) {
	e := newTestEnricher()
	tests := []struct {
		name  string
		sheet string
		ref   string
	}{
		{"concurrent sheet", "Serentak", "MBSP/15/U24-2511/0120-PKM+BGN"},
		{"marker in reference", "PKM", "MBSP/15/U24-2511/0120-SERENTAK(PKM+BGN)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := e.Enrich(RawRow{Sheet: tt.sheet, Reference: tt.ref, Applicant: "X"})
			if !ok {
				t.Fatal("expected record")
			}
			if !rec.Concurrent {
				t.Error("expected concurrent")
			}
			if !rec.Codes.Has("PKM") || !rec.Codes.Has("BGN") {
				t.Errorf("Codes = %v", rec.Codes.Sorted())
			}
			if rec.Parent != "MBSP/15/U24-2511/0120" {
				t.Errorf("Parent = %q", rec.Parent)
			}
		})
	}
}

func TestEnrichDiscardsEmptyRows(t *testing.T) {
	e := newTestEnricher()
	if _, ok := e.Enrich(RawRow{Sheet: "PKM", Mukim: "15", Reference: "  ", Applicant: ""}); ok {
		t.Fatal("row without reference and applicant must be discarded")
	}
	rows := []RawRow{
		{Sheet: "PKM", Reference: "MBSP/15/U24-2511/0120-PKM"},
		{Sheet: "PKM"},
		{Sheet: "BGN", Applicant: "Tetuan ABC Sdn Bhd"},
	}
	recs := e.EnrichAll(rows)
	if len(recs) != 2 {
		t.Fatalf("EnrichAll kept %d rows, want 2", len(recs))
	}
	if recs[1].ParentKey != "applicant:abc" {
		t.Errorf("applicant-only row ParentKey = %q", recs[1].ParentKey)
	}
}

func TestDecisionPending(t *testing.T) {
	e := newTestEnricher()
	pending := map[string]bool{"": true, "-": true, "tiada": true, "LULUS": false, "TOLAK 12/01/2026": false}
	for decision, want := range pending {
		if got := e.DecisionPending(Record{RawRow: RawRow{Decision: decision}}); got != want {
			t.Errorf("DecisionPending(%q) = %v, want %v", decision, got, want)
		}
	}
}
