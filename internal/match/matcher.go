// Package match decides whether an application is already tabled in the
// meeting agenda and should be left out of the report.
package match

import (
	"lampiran/api/internal/agenda"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

// Tier names the rule that matched.
type Tier string

const (
	TierNone       Tier = ""
	TierParent     Tier = "parent"
	TierTail       Tier = "tail"
	TierSeriesTail Tier = "series_tail"
	TierFuzzy      Tier = "fuzzy"
)

// Decision explains a suppression verdict.
type Decision struct {
	Suppress   bool       `json:"suppress"`
	Filterable bool       `json:"filterable"`
	Tier       Tier       `json:"tier,omitempty"`
	Confidence Confidence `json:"confidence"`
	Block      string     `json:"block,omitempty"`
}

type Matcher struct {
	index *agenda.Index
	vocab *vocab.Vocabulary
	codes [][]string
}

func New(index *agenda.Index, v *vocab.Vocabulary) *Matcher {
	if index == nil {
		index = agenda.NewIndex(nil)
	}
	m := &Matcher{index: index, vocab: v}
	for _, b := range index.Active() {
		m.codes = append(m.codes, v.SheetImpliedCodes(b.Code))
	}
	return m
}

func (m *Matcher) ShouldSuppress(rec permit.Record) bool {
	return m.Explain(rec).Suppress
}

// Explain runs the tiers in order and stops at the first hit: exact parent
// key, tail when the agenda uses it under a single series, series plus tail,
// then the fuzzy applicant and lot comparison. Exempt blocks take no part.
func (m *Matcher) Explain(rec permit.Record) Decision {
	if !m.vocab.AgendaFilterable(rec.Sheet) {
		return Decision{}
	}
	d := Decision{Filterable: true}

	if m.index.HasParent(rec.ParentKey) {
		return hit(d, TierParent, ConfidenceHigh, m.blockWith(func(b agenda.Block) bool {
			return contains(b.ParentKeys, rec.ParentKey)
		}))
	}

	if rec.HasRef {
		// A bare tail only counts when the agenda uses it under a single
		// series. Tails shared across series fall through to series+tail.
		tail := rec.Ref.TailKey()
		if m.index.HasTail(tail) && !m.index.TailAmbiguous(tail) {
			return hit(d, TierTail, ConfidenceHigh, m.blockWith(func(b agenda.Block) bool {
				for _, r := range b.Refs {
					if r.TailKey() == tail {
						return true
					}
				}
				return false
			}))
		}
		key := rec.Ref.SeriesTailKey()
		if m.index.HasSeriesTail(key) {
			return hit(d, TierSeriesTail, ConfidenceHigh, m.blockWith(func(b agenda.Block) bool {
				for _, r := range b.Refs {
					if r.SeriesTailKey() == key {
						return true
					}
				}
				return false
			}))
		}
	}

	subject := Evidence{Applicant: rec.Applicant, LotTokens: rec.LotTokens, Codes: rec.Codes}
	best := ConfidenceNone
	for i, b := range m.index.Active() {
		c := Score(subject, Evidence{
			Applicant: b.Applicant,
			LotTokens: b.LotTokens,
			Codes:     ref.NewCodeSet(m.codes[i]...),
		})
		if c == ConfidenceHigh {
			return hit(d, TierFuzzy, c, b.Header)
		}
		if c > best {
			best = c
		}
	}
	d.Confidence = best
	return d
}

// Filter drops suppressed records, keeping order, and counts them.
func (m *Matcher) Filter(records []permit.Record) ([]permit.Record, int) {
	kept := make([]permit.Record, 0, len(records))
	suppressed := 0
	for _, rec := range records {
		if m.ShouldSuppress(rec) {
			suppressed++
			continue
		}
		kept = append(kept, rec)
	}
	return kept, suppressed
}

func hit(d Decision, tier Tier, c Confidence, block string) Decision {
	d.Suppress = true
	d.Tier = tier
	d.Confidence = c
	d.Block = block
	return d
}

func (m *Matcher) blockWith(pred func(agenda.Block) bool) string {
	for _, b := range m.index.Active() {
		if pred(b) {
			return b.Header
		}
	}
	return ""
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
