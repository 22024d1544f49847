package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over category_records using PostgreSQL
// full-text search.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: without Postgres there is nothing to search.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches q.Text with plainto_tsquery in the 'simple' configuration,
// so reference numbers and Malay names are not stemmed.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	where, args := pgWhere(q)
	if where == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM category_records c WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.run_id, c.category, c.sequence, c.fail_no, c.pemohon, c.tindakan, c.daerah,
			ts_headline('simple', c.fail_no || ' ' || c.pemohon, plainto_tsquery('simple', $1),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=20') AS snippet
		FROM category_records c
		WHERE %s
		ORDER BY ts_rank(c.fts, plainto_tsquery('simple', $1)) DESC, c.run_id DESC, c.category, c.sequence
		LIMIT %d OFFSET %d`, where, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.RunID, &r.Category, &r.Sequence, &r.FailNo, &r.Pemohon, &r.Tindakan, &r.Daerah, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// pgWhere builds the filter clause. $1 is always the query text.
func pgWhere(q Query) (string, []any) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return "", nil
	}
	clauses := []string{"c.fts @@ plainto_tsquery('simple', $1)"}
	args := []any{text}
	if q.RunID != "" {
		args = append(args, q.RunID)
		clauses = append(clauses, fmt.Sprintf("c.run_id = $%d", len(args)))
	}
	if q.Category > 0 {
		args = append(args, q.Category)
		clauses = append(clauses, fmt.Sprintf("c.category = $%d", len(args)))
	}
	if q.Daerah != "" {
		args = append(args, strings.ToUpper(q.Daerah))
		clauses = append(clauses, fmt.Sprintf("c.daerah = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}
