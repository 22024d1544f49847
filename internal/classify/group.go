package classify

import (
	"sort"
	"strings"
	"time"

	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
)

// Group is every record that shares one parent filing.
type Group struct {
	Key         string
	Members     []permit.Record
	Codes       ref.CodeSet
	ProcessDate time.Time
	Concurrent  bool
	Display     string
}

// Lead is the member whose applicant, mukim, lot and district represent a
// concurrent group.
func (g *Group) Lead() permit.Record {
	return g.Members[0]
}

// GroupRecords groups records by parent match key. Groups come back in the
// order their first member appears.
func GroupRecords(records []permit.Record) []*Group {
	byKey := map[string]*Group{}
	var groups []*Group
	for _, rec := range records {
		g, ok := byKey[rec.ParentKey]
		if !ok {
			g = &Group{Key: rec.ParentKey, Codes: ref.CodeSet{}}
			byKey[rec.ParentKey] = g
			groups = append(groups, g)
		}
		g.add(rec)
	}
	return groups
}

func (g *Group) add(rec permit.Record) {
	g.Members = append(g.Members, rec)
	g.Codes.Union(rec.Codes)
	g.Concurrent = g.Concurrent || rec.Concurrent
	if !rec.ProcessDate.IsZero() && (g.ProcessDate.IsZero() || rec.ProcessDate.Before(g.ProcessDate)) {
		g.ProcessDate = rec.ProcessDate
	}
	// Heuristic: the longest display usually keeps the most notes. Ties keep
	// the earlier member.
	if len(rec.Display) > len(g.Display) {
		g.Display = rec.Display
	}
}

// sortRecords puts records in a canonical order so grouping and first-seen
// rules do not depend on the order sources were read in.
func sortRecords(records []permit.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := recordSortKey(records[i]), recordSortKey(records[j])
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
}

func recordSortKey(r permit.Record) [11]string {
	return [11]string{
		strings.ToUpper(r.District),
		r.SheetName,
		r.MatchKey,
		r.Reference,
		r.Applicant,
		r.Mukim,
		r.Lot,
		r.ProcessDeadline,
		r.ReviewDeadline,
		r.PendingReviewers,
		r.Decision,
	}
}
