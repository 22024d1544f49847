package store

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreRunLifecycle(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, os.DirFS(migrationsDir)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	run := Run{
		ID:            "run_1",
		CreatedBy:     "aisyah",
		KMStart:       day(8),
		KMEnd:         day(27),
		UTStart:       day(1),
		UTEnd:         day(12),
		ReviewEnabled: true,
		AgendaName:    "mesyuarat.docx",
		Sources:       []string{"SPU.xlsx", "SPT.xlsx"},
		Stats:         json.RawMessage(`{"rows":3}`),
	}
	rows := []CategoryRow{
		{Category: 1, Sequence: 1, Tindakan: "Perancangan", FailNo: "MBSP/15/U24-2511/0120-PKM", Pemohon: "Lim Ah Kow", Daerah: "SPU"},
		{Category: 2, Sequence: 1, Tindakan: "JKR", FailNo: "MBSP/15/U24-2511/0121-BGN", Pemohon: "Tetuan Bina Jaya", Daerah: "SPT"},
	}
	if err := s.CreateRun(ctx, run, rows); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Total != 2 || len(got.Sources) != 2 || !got.KMEnd.Equal(day(27)) {
		t.Fatalf("unexpected run %+v", got)
	}

	cat2, err := s.ListRecords(ctx, "run_1", 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(cat2) != 1 || cat2[0].Tindakan != "JKR" {
		t.Fatalf("unexpected category 2 rows %+v", cat2)
	}

	if err := s.SetArchiveCommit(ctx, "run_1", "abc123"); err != nil {
		t.Fatalf("SetArchiveCommit: %v", err)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ArchiveCommit != "abc123" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	if err := s.DeleteRun(ctx, "run_1"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "run_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRunIsAtomic(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, os.DirFS(migrationsDir)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	dup := []CategoryRow{{Category: 1, Sequence: 1}, {Category: 1, Sequence: 1}}
	if err := s.CreateRun(ctx, Run{ID: "run_dup", CreatedBy: "x"}, dup); err == nil {
		t.Fatal("expected duplicate sequence to fail")
	}
	if _, err := s.GetRun(ctx, "run_dup"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("run must be rolled back, got %v", err)
	}
}
