// Package classify groups pending applications by parent filing and routes
// them into the five Lampiran G categories.
package classify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/match"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

// Params are the per-run windows.
type Params struct {
	KM            permit.Window `json:"km"`
	Review        permit.Window `json:"review"`
	ReviewEnabled bool          `json:"reviewEnabled"`
}

// CategoryRecord is one row of the report.
type CategoryRecord struct {
	Sequence  int       `json:"bil"`
	Category  int       `json:"category"`
	Tindakan  string    `json:"tindakan"`
	Jenis     string    `json:"jenis"`
	FailNo    string    `json:"failNo"`
	Applicant string    `json:"pemohon"`
	Mukim     string    `json:"mukim"`
	Lot       string    `json:"lot"`
	Perkara   string    `json:"perkara"`
	District  string    `json:"daerah"`
	Deadline  time.Time `json:"deadline"`
	Key       string    `json:"key"`

	rank          int
	applicantKey  string
	discriminator string
}

func newRow(category int, tindakan string, rank int, base permit.Record, jenis, failNo, perkara string) CategoryRecord {
	return CategoryRecord{
		Category:     category,
		Tindakan:     tindakan,
		Jenis:        jenis,
		FailNo:       failNo,
		Applicant:    base.Applicant,
		Mukim:        strings.TrimSpace(base.Mukim),
		Lot:          strings.TrimSpace(base.Lot),
		Perkara:      perkara,
		District:     base.District,
		rank:         rank,
		applicantKey: base.ApplicantKey,
	}
}

// Stats are the run diagnostics.
type Stats struct {
	Rows       int `json:"rows"`
	Pending    int `json:"pending"`
	Suppressed int `json:"suppressed"`
	Groups     int `json:"groups"`
	Duplicates int `json:"duplicates"`
}

// Report holds the five category tables, each sorted and numbered from 1.
type Report struct {
	Categories [vocab.CategoryCount][]CategoryRecord `json:"categories"`
	Stats      Stats                                 `json:"stats"`
}

// Category returns the rows of category n (1-based).
func (r *Report) Category(n int) []CategoryRecord {
	if n < 1 || n > vocab.CategoryCount {
		return nil
	}
	return r.Categories[n-1]
}

// Total counts rows across all categories.
func (r *Report) Total() int {
	n := 0
	for _, rows := range r.Categories {
		n += len(rows)
	}
	return n
}

type Engine struct {
	vocab    *vocab.Vocabulary
	norm     *ref.Normalizer
	enricher *permit.Enricher
	rules    []Rule
}

func New(norm *ref.Normalizer) *Engine {
	v := norm.Vocabulary()
	return &Engine{
		vocab:    v,
		norm:     norm,
		enricher: permit.NewEnricher(norm),
		rules:    buildRules(v, norm),
	}
}

func (e *Engine) Rules() []Rule { return e.rules }

// Matcher builds the agenda matcher this engine filters with.
func (e *Engine) Matcher(idx *agenda.Index) *match.Matcher {
	return match.New(idx, e.vocab)
}

// RunRows enriches raw rows and classifies them.
func (e *Engine) RunRows(rows []permit.RawRow, idx *agenda.Index, p Params) Report {
	return e.Run(e.enricher.EnrichAll(rows), idx, p)
}

// Run classifies records. Rows with a decision are dropped and rows already
// tabled in idx are suppressed before grouping. idx may be nil.
func (e *Engine) Run(records []permit.Record, idx *agenda.Index, p Params) Report {
	var rep Report
	rep.Stats.Rows = len(records)

	pending := make([]permit.Record, 0, len(records))
	for _, rec := range records {
		if e.enricher.DecisionPending(rec) {
			pending = append(pending, rec)
		}
	}
	rep.Stats.Pending = len(pending)

	kept, suppressed := e.Matcher(idx).Filter(pending)
	rep.Stats.Suppressed = suppressed

	sortRecords(kept)
	groups := GroupRecords(kept)
	rep.Stats.Groups = len(groups)

	seen := make([]map[string]struct{}, vocab.CategoryCount)
	for i := range rep.Categories {
		rep.Categories[i] = []CategoryRecord{}
		seen[i] = map[string]struct{}{}
	}
	for _, g := range groups {
		for _, rule := range e.rules {
			for _, row := range rule.Apply(g, p) {
				i := row.Category - 1
				row.Key = e.dedupKey(row)
				if _, dup := seen[i][row.Key]; dup {
					rep.Stats.Duplicates++
					continue
				}
				seen[i][row.Key] = struct{}{}
				rep.Categories[i] = append(rep.Categories[i], row)
			}
		}
	}

	for i := range rep.Categories {
		e.sortRows(rep.Categories[i])
	}
	return rep
}

func (e *Engine) dedupKey(row CategoryRecord) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", row.Category, row.Tindakan, e.norm.MatchKey(row.FailNo), row.applicantKey, row.discriminator)
}

// sortRows orders by district rank, department rank, action and file number,
// then numbers the rows from 1.
func (e *Engine) sortRows(rows []CategoryRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if ra, rb := e.vocab.DistrictRank(a.District), e.vocab.DistrictRank(b.District); ra != rb {
			return ra < rb
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.Tindakan != b.Tindakan {
			return a.Tindakan < b.Tindakan
		}
		return a.FailNo < b.FailNo
	})
	for i := range rows {
		rows[i].Sequence = i + 1
	}
}
