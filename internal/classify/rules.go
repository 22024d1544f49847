package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

// Rule turns a group into zero or more rows of one category.
type Rule interface {
	Category() int
	Apply(g *Group, p Params) []CategoryRecord
}

// deadlineRule routes groups whose codes intersect codes to department when
// the process deadline falls inside the KM window. Concurrent groups produce
// one row and are tested against concurrent; other groups produce one row per
// qualifying member.
type deadlineRule struct {
	category   int
	department string
	rank       int
	codes      ref.CodeSet
	concurrent ref.CodeSet
	norm       *ref.Normalizer
}

func (r deadlineRule) Category() int { return r.category }

func (r deadlineRule) Apply(g *Group, p Params) []CategoryRecord {
	if g.Concurrent {
		if !p.KM.Contains(g.ProcessDate) || !g.Codes.Intersects(r.concurrent) {
			return nil
		}
		lead := g.Lead()
		jenis := concurrentLabel(r.norm, g.Codes)
		row := newRow(r.category, r.department, r.rank, lead, jenis, g.Display, meetingPaperDue(g.ProcessDate))
		row.Deadline = g.ProcessDate
		row.discriminator = jenis + "|" + permit.FormatDate(g.ProcessDate)
		return []CategoryRecord{row}
	}

	var rows []CategoryRecord
	for _, m := range g.Members {
		if !p.KM.Contains(m.ProcessDate) || !m.Codes.Intersects(r.codes) {
			continue
		}
		row := newRow(r.category, r.department, r.rank, m, m.SheetName, m.Display, meetingPaperDue(m.ProcessDate))
		row.Deadline = m.ProcessDate
		row.discriminator = m.SheetName + "|" + permit.FormatDate(m.ProcessDate)
		rows = append(rows, row)
	}
	return rows
}

// reviewRule lists members whose technical review is overdue. The action
// column names the reviewers still outstanding.
type reviewRule struct {
	vocab *vocab.Vocabulary
	norm  *ref.Normalizer
}

func (r reviewRule) Category() int { return vocab.CategoryTechnicalReview }

func (r reviewRule) Apply(g *Group, p Params) []CategoryRecord {
	if !p.ReviewEnabled {
		return nil
	}
	var rows []CategoryRecord
	for _, m := range g.Members {
		if !r.vocab.ReviewEligible(m.Sheet) || !p.Review.Contains(m.ReviewDate) {
			continue
		}
		if permit.Blankish(m.PendingReviewers, r.vocab) {
			continue
		}
		if r.vocab.IsConcurrentSheet(m.Sheet) && !r.vocab.ReviewOwnerAllowed(m.OwnerCode) {
			continue
		}
		tindakan := Reviewers(m.PendingReviewers, r.vocab)
		if tindakan == "" {
			continue
		}
		jenis, failNo := m.SheetName, m.Display
		if g.Concurrent {
			jenis, failNo = concurrentLabel(r.norm, g.Codes), g.Display
		}
		perkara := fmt.Sprintf("Ulasan teknikal belum dikemukakan. Tamat Tempoh %s.", permit.FormatDate(m.ReviewDate))
		row := newRow(vocab.CategoryTechnicalReview, tindakan, 0, m, jenis, failNo, perkara)
		row.Deadline = m.ReviewDate
		row.discriminator = jenis + "|" + permit.FormatDate(m.ReviewDate) + "|" + strings.ToUpper(strings.Join(strings.Fields(m.PendingReviewers), " "))
		rows = append(rows, row)
	}
	return rows
}

// buildRules turns the vocabulary's deadline table into rules and adds the
// technical review rule. Department rank follows table order within each
// category.
func buildRules(v *vocab.Vocabulary, norm *ref.Normalizer) []Rule {
	rank := map[int]map[string]int{}
	var rules []Rule
	for _, dr := range v.DeadlineRules {
		if rank[dr.Category] == nil {
			rank[dr.Category] = map[string]int{}
		}
		if _, ok := rank[dr.Category][dr.Department]; !ok {
			rank[dr.Category][dr.Department] = len(rank[dr.Category])
		}
		codes := upperCodes(dr.Codes)
		concurrent := codes
		if len(dr.ConcurrentCodes) > 0 {
			concurrent = upperCodes(dr.ConcurrentCodes)
		}
		rules = append(rules, deadlineRule{
			category:   dr.Category,
			department: dr.Department,
			rank:       rank[dr.Category][dr.Department],
			codes:      codes,
			concurrent: concurrent,
			norm:       norm,
		})
	}
	return append(rules, reviewRule{vocab: v, norm: norm})
}

func upperCodes(codes []string) ref.CodeSet {
	set := ref.CodeSet{}
	for _, c := range codes {
		set.Add(strings.ToUpper(c))
	}
	return set
}

func concurrentLabel(norm *ref.Normalizer, codes ref.CodeSet) string {
	label := norm.Label(codes)
	if label == "" {
		return "(Serentak)"
	}
	return label + " (Serentak)"
}

func meetingPaperDue(d time.Time) string {
	return "Penyediaan Kertas\nMesyuarat Tamat Tempoh\n" + permit.FormatDate(d)
}

var reviewerSplit = regexp.MustCompile(`[,&/]+`)

// Reviewers maps outstanding-reviewer text to the action column: internal
// department abbreviations become full titles, anything else is kept upper
// cased. Internal titles come first; duplicates are dropped.
func Reviewers(text string, v *vocab.Vocabulary) string {
	if permit.Blankish(text, v) {
		return ""
	}
	var internal, external []string
	seen := map[string]struct{}{}
	for _, part := range reviewerSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" || permit.Blankish(part, v) {
			continue
		}
		label := strings.ToUpper(part)
		isInternal := false
		if title, ok := v.Department(strings.Join(strings.Fields(strings.ToUpper(part)), "")); ok {
			label, isInternal = title, true
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		if isInternal {
			internal = append(internal, label)
		} else {
			external = append(external, label)
		}
	}
	return strings.Join(append(internal, external...), "\n")
}
