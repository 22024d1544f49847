// Package search looks up stored Lampiran G rows by reference, applicant,
// lot or mukim. Meilisearch serves queries when it is reachable; PostgreSQL
// full-text search covers the rest.
package search

import (
	"context"
	"fmt"

	"lampiran/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	RunID    string `json:"runId"`
	Category int    `json:"category"`
	Sequence int    `json:"sequence"`
	FailNo   string `json:"failNo"`
	Pemohon  string `json:"pemohon"`
	Tindakan string `json:"tindakan"`
	Daerah   string `json:"daerah"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text     string
	RunID    string // empty = all runs
	Category int    // 0 = all categories
	Daerah   string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push rows into a search index.
type Indexer interface {
	Searcher
	IndexRecords(records []RecordDoc) error
	DeleteRun(runID string) error
}

// RecordDoc is the data we index for one category row.
type RecordDoc struct {
	ID       string `json:"id"`
	RunID    string `json:"runId"`
	Category int    `json:"category"`
	Sequence int    `json:"sequence"`
	Tindakan string `json:"tindakan"`
	Jenis    string `json:"jenis"`
	FailNo   string `json:"failNo"`
	Pemohon  string `json:"pemohon"`
	Mukim    string `json:"mukim"`
	Lot      string `json:"lot"`
	Daerah   string `json:"daerah"`
}

// DocID is the index primary key of a row. Meilisearch ids allow only
// letters, digits, '-' and '_'.
func DocID(runID string, category, sequence int) string {
	return fmt.Sprintf("%s-%d-%d", runID, category, sequence)
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 200 {
		return 200
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// DocsFromRows converts stored rows to index documents.
func DocsFromRows(rows []store.CategoryRow) []RecordDoc {
	docs := make([]RecordDoc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, RecordDoc{
			ID:       DocID(r.RunID, r.Category, r.Sequence),
			RunID:    r.RunID,
			Category: r.Category,
			Sequence: r.Sequence,
			Tindakan: r.Tindakan,
			Jenis:    r.Jenis,
			FailNo:   r.FailNo,
			Pemohon:  r.Pemohon,
			Mukim:    r.Mukim,
			Lot:      r.Lot,
			Daerah:   r.Daerah,
		})
	}
	return docs
}
