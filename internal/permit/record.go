// Package permit models one permit-application spreadsheet row and derives
// the keys the classifier needs from it.
package permit

import (
	"strings"
	"time"

	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

// RawRow is a spreadsheet row as delivered by the reader, before any
// normalization.
type RawRow struct {
	District         string `json:"district"`
	Sheet            string `json:"sheet"`
	Reference        string `json:"reference"`
	Applicant        string `json:"applicant"`
	Mukim            string `json:"mukim"`
	Lot              string `json:"lot"`
	ProcessDeadline  string `json:"processDeadline"`
	ReviewDeadline   string `json:"reviewDeadline"`
	PendingReviewers string `json:"pendingReviewers"`
	Decision         string `json:"decision"`
}

// Record is an enriched application row. It is built once by Enrich and only
// read afterwards.
type Record struct {
	RawRow

	SheetName    string
	Display      string
	Codes        ref.CodeSet
	Parent       string
	ParentKey    string
	MatchKey     string
	Concurrent   bool
	LotTokens    []string
	ApplicantKey string
	ProcessDate  time.Time
	ReviewDate   time.Time
	OwnerCode    string
	Ref          ref.Ref
	HasRef       bool
}

type Enricher struct {
	norm  *ref.Normalizer
	vocab *vocab.Vocabulary
}

func NewEnricher(norm *ref.Normalizer) *Enricher {
	return &Enricher{norm: norm, vocab: norm.Vocabulary()}
}

// Enrich derives every matching key from row. Rows whose reference and
// applicant are both blank are rejected.
func (e *Enricher) Enrich(row RawRow) (Record, bool) {
	row.Reference = strings.TrimSpace(row.Reference)
	row.Applicant = strings.TrimSpace(row.Applicant)
	if row.Reference == "" && row.Applicant == "" {
		return Record{}, false
	}

	parent := e.norm.Parent(row.Reference)
	rec := Record{
		RawRow:       row,
		SheetName:    vocab.SheetName(row.Sheet),
		Display:      e.norm.Display(row.Reference),
		Codes:        e.norm.Codes(row.Reference, row.Sheet),
		Parent:       parent,
		ParentKey:    e.norm.MatchKey(parent),
		MatchKey:     e.norm.MatchKey(row.Reference),
		LotTokens:    LotTokens(row.Lot),
		ApplicantKey: ApplicantKey(row.Applicant),
		ProcessDate:  ParseDate(row.ProcessDeadline),
		ReviewDate:   ParseDate(row.ReviewDeadline),
		OwnerCode:    OwnerCode(row.ProcessDeadline),
	}
	rec.Concurrent = e.vocab.IsConcurrentSheet(row.Sheet) ||
		(e.vocab.ConcurrentMarker != "" && strings.Contains(strings.ToUpper(row.Reference), strings.ToUpper(e.vocab.ConcurrentMarker)))
	rec.Ref, rec.HasRef = e.norm.FirstRef(row.Reference)
	if rec.ParentKey == "" {
		// Applicant-only rows still need a group of their own.
		rec.ParentKey = "applicant:" + rec.ApplicantKey
	}
	return rec, true
}

// EnrichAll enriches rows in order, dropping discarded ones.
func (e *Enricher) EnrichAll(rows []RawRow) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		if rec, ok := e.Enrich(row); ok {
			out = append(out, rec)
		}
	}
	return out
}

// DecisionPending reports whether the decision cell carries no decision yet.
func (e *Enricher) DecisionPending(rec Record) bool {
	return Blankish(rec.Decision, e.vocab)
}
