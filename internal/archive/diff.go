package archive

import (
	"sort"

	"lampiran/api/internal/classify"
)

type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
)

// Change is one row that appears in only one of two snapshots.
type Change struct {
	Kind     ChangeKind `json:"kind"`
	Category int        `json:"category"`
	Tindakan string     `json:"tindakan"`
	FailNo   string     `json:"failNo"`
	Pemohon  string     `json:"pemohon"`
}

// Diff compares two snapshots by row identity. Sequence numbers are
// ignored; a row that only moved is not a change.
func Diff(from, to Snapshot) []Change {
	before := rowsByKey(from.Report)
	after := rowsByKey(to.Report)

	changes := make([]Change, 0)
	for key, row := range after {
		if _, ok := before[key]; !ok {
			changes = append(changes, toChange(Added, row))
		}
	}
	for key, row := range before {
		if _, ok := after[key]; !ok {
			changes = append(changes, toChange(Removed, row))
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.FailNo != b.FailNo {
			return a.FailNo < b.FailNo
		}
		if a.Tindakan != b.Tindakan {
			return a.Tindakan < b.Tindakan
		}
		return a.Kind < b.Kind
	})
	return changes
}

func rowsByKey(report classify.Report) map[string]classify.CategoryRecord {
	out := map[string]classify.CategoryRecord{}
	for _, rows := range report.Categories {
		for _, row := range rows {
			out[row.Key] = row
		}
	}
	return out
}

func toChange(kind ChangeKind, row classify.CategoryRecord) Change {
	return Change{
		Kind:     kind,
		Category: row.Category,
		Tindakan: row.Tindakan,
		FailNo:   row.FailNo,
		Pemohon:  row.Applicant,
	}
}
