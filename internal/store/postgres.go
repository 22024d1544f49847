package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// CreateRun stores a run and all of its rows atomically.
func (s *PostgresStore) CreateRun(ctx context.Context, run Run, rows []CategoryRow) error {
	sources := run.Sources
	if sources == nil {
		sources = []string{}
	}
	encodedSources, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal run sources: %w", err)
	}
	stats := run.Stats
	if len(stats) == 0 {
		stats = json.RawMessage(`{}`)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_by, km_start, km_end, ut_start, ut_end, review_enabled,
			agenda_name, agenda_digest, sources, stats, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12)
	`, run.ID, run.CreatedBy, run.KMStart, run.KMEnd, run.UTStart, run.UTEnd, run.ReviewEnabled,
		run.AgendaName, run.AgendaDigest, string(encodedSources), string(stats), run.Notes)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO category_records (run_id, category, sequence, tindakan, jenis, fail_no, pemohon,
			mukim, lot, perkara, daerah, deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer insert.Close()

	for _, row := range rows {
		if _, err := insert.ExecContext(ctx, run.ID, row.Category, row.Sequence, row.Tindakan, row.Jenis,
			row.FailNo, row.Pemohon, row.Mukim, row.Lot, row.Perkara, row.Daerah, row.Deadline); err != nil {
			return fmt.Errorf("insert category %d row %d: %w", row.Category, row.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `
	r.id, r.created_by, r.created_at, r.km_start, r.km_end, r.ut_start, r.ut_end, r.review_enabled,
	r.agenda_name, r.agenda_digest, r.sources, r.stats, r.notes, r.archive_commit,
	(SELECT count(*) FROM category_records c WHERE c.run_id = r.id)`

func scanRun(scan func(...any) error) (Run, error) {
	var run Run
	var sourcesRaw, statsRaw []byte
	err := scan(
		&run.ID,
		&run.CreatedBy,
		&run.CreatedAt,
		&run.KMStart,
		&run.KMEnd,
		&run.UTStart,
		&run.UTEnd,
		&run.ReviewEnabled,
		&run.AgendaName,
		&run.AgendaDigest,
		&sourcesRaw,
		&statsRaw,
		&run.Notes,
		&run.ArchiveCommit,
		&run.Total,
	)
	if err != nil {
		return Run{}, err
	}
	_ = json.Unmarshal(sourcesRaw, &run.Sources)
	run.Stats = json.RawMessage(statsRaw)
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id=$1`, runID)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	items := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		items = append(items, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return items, nil
}

// ListRecords returns the rows of one run ordered by category and sequence.
// category 0 selects every category.
func (s *PostgresStore) ListRecords(ctx context.Context, runID string, category int) ([]CategoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, category, sequence, tindakan, jenis, fail_no, pemohon, mukim, lot, perkara, daerah, deadline
		FROM category_records
		WHERE run_id=$1 AND ($2=0 OR category=$2)
		ORDER BY category, sequence
	`, runID, category)
	if err != nil {
		return nil, fmt.Errorf("list category records: %w", err)
	}
	defer rows.Close()
	return scanCategoryRows(rows)
}

// AllRecords returns every stored row; used to rebuild the search index.
func (s *PostgresStore) AllRecords(ctx context.Context) ([]CategoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, category, sequence, tindakan, jenis, fail_no, pemohon, mukim, lot, perkara, daerah, deadline
		FROM category_records
		ORDER BY run_id, category, sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("load category records: %w", err)
	}
	defer rows.Close()
	return scanCategoryRows(rows)
}

func scanCategoryRows(rows *sql.Rows) ([]CategoryRow, error) {
	items := make([]CategoryRow, 0)
	for rows.Next() {
		var item CategoryRow
		if err := rows.Scan(
			&item.RunID,
			&item.Category,
			&item.Sequence,
			&item.Tindakan,
			&item.Jenis,
			&item.FailNo,
			&item.Pemohon,
			&item.Mukim,
			&item.Lot,
			&item.Perkara,
			&item.Daerah,
			&item.Deadline,
		); err != nil {
			return nil, fmt.Errorf("scan category record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetArchiveCommit(ctx context.Context, runID, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET archive_commit=$2 WHERE id=$1`, runID, hash)
	if err != nil {
		return fmt.Errorf("set archive commit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id=$1`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
