package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/archive"
	"lampiran/api/internal/auth"
	"lampiran/api/internal/classify"
	"lampiran/api/internal/config"
	"lampiran/api/internal/email"
	"lampiran/api/internal/export"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/search"
	"lampiran/api/internal/sheet"
	"lampiran/api/internal/store"
	"lampiran/api/internal/vocab"
)

type fakeStore struct {
	mu      sync.Mutex
	runs    map[string]store.Run
	rows    map[string][]store.CategoryRow
	pingErr error
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[string]store.Run{}, rows: map[string][]store.CategoryRow{}}
}

func (f *fakeStore) CreateRun(_ context.Context, run store.Run, rows []store.CategoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs[run.ID] = run
	f.rows[run.ID] = rows
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListRuns(context.Context, int) ([]store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Run, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeStore) ListRecords(_ context.Context, id string, category int) ([]store.CategoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CategoryRow
	for _, row := range f.rows[id] {
		if category == 0 || row.Category == category {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) SetArchiveCommit(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.ArchiveCommit = hash
	f.runs[id] = run
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type fakeSearch struct {
	mu      sync.Mutex
	indexed map[string][]search.RecordDoc
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{RunID: "run_1", FailNo: "MBSP/15/U24-2511/0120-PKM"}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexRun(runID string, docs []search.RecordDoc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = map[string][]search.RecordDoc{}
	}
	f.indexed[runID] = docs
}

type fakeCache struct {
	entries map[string]*agenda.Index
}

func (f *fakeCache) GetOrParse(_ context.Context, digest string, parse func() (*agenda.Index, error)) (*agenda.Index, bool, error) {
	if idx, ok := f.entries[digest]; ok {
		return idx, true, nil
	}
	idx, err := parse()
	if err != nil {
		return nil, false, err
	}
	f.entries[digest] = idx
	return idx, false, nil
}

type fakeBlobs struct {
	keys []string
}

func (f *fakeBlobs) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.keys = append(f.keys, key)
	return nil
}

type fakeMail struct {
	to   []string
	sent []email.RunSummary
}

func (f *fakeMail) IsConfigured() bool { return true }

func (f *fakeMail) SendRunSummary(to []string, summary email.RunSummary) error {
	f.to = to
	f.sent = append(f.sent, summary)
	return nil
}

type fakeExport struct {
	requests []export.Request
}

func (f *fakeExport) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.requests = append(f.requests, req)
	return &export.Result{Data: []byte("<html></html>"), Filename: "lampiran-g.html", MimeType: "text/html; charset=utf-8"}, nil
}

type testEnv struct {
	svc     *Service
	store   *fakeStore
	search  *fakeSearch
	cache   *fakeCache
	blobs   *fakeBlobs
	mail    *fakeMail
	export  *fakeExport
	archive *archive.Archive
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	hash, err := auth.HashPassword("operator-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	viewerHash, err := auth.HashPassword("viewer-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	accounts, err := auth.ParseAccounts("aminah:operator:" + hash + ",ravi:viewer:" + viewerHash)
	if err != nil {
		t.Fatalf("parse accounts: %v", err)
	}

	env := testEnv{
		store:   newFakeStore(),
		search:  &fakeSearch{},
		cache:   &fakeCache{entries: map[string]*agenda.Index{}},
		blobs:   &fakeBlobs{},
		mail:    &fakeMail{},
		export:  &fakeExport{},
		archive: archive.New(t.TempDir()),
	}
	cfg := config.Config{
		JWTSecret:   "test-secret",
		AccessTTL:   time.Hour,
		PublicURL:   "https://osc.example.test/",
		MaxUploadMB: 8,
		NotifyTo:    []string{"osc@example.test"},
	}
	env.svc = New(cfg, ref.New(vocab.Default()), Deps{
		Store:    env.store,
		Search:   env.search,
		Cache:    env.cache,
		Blobs:    env.blobs,
		Archive:  env.archive,
		Mail:     env.mail,
		Export:   env.export,
		Accounts: accounts,
	})
	env.svc.now = func() time.Time { return time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC) }
	return env
}

var workbookHeader = []interface{}{
	"Bil",
	"No. Rujukan OSC",
	"Pemaju/Pemohon",
	"Mukim/Seksyen",
	"Lot",
	"Tempoh Untuk Proses Oleh Jabatan Induk",
	"Tempoh Untuk Diberi Ulasan Oleh Jabatan Teknikal",
	"Jabatan Induk/Teknikal Yg Belum Memberi Keputusan/Ulasan Sehingga Kini",
	"Tarikh Keputusan Kuasa",
}

func buildWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "PKM"); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	all := append([][]interface{}{workbookHeader}, rows...)
	for r, row := range all {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("PKM", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func buildAgenda(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document part: %v", err)
	}
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write document part: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
	return buf.Bytes()
}

func januaryParams() classify.Params {
	return classify.Params{
		KM: permit.Window{
			Start: time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC),
		},
		Review: permit.Window{
			Start: time.Date(2025, 12, 23, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
		},
		ReviewEnabled: true,
	}
}

func sampleRunInput(t *testing.T) RunInput {
	return RunInput{
		CreatedBy:  "aminah",
		AgendaName: "agenda-jan.docx",
		Agenda: buildAgenda(t,
			"KERTAS MESYUARAT BIL. OSC/PKM/001/2026",
			"No. Rujukan OSC : MBSP/15/U24-2511/0121-PKM",
			"Pemohon : Tetuan XYZ Sdn Bhd",
		),
		Sheets: []sheet.Source{{
			Name: "SPU.xlsx",
			Data: buildWorkbook(t,
				[]interface{}{1, "MBSP/15/U24-2511/0120-PKM", "Tetuan ABC Sdn Bhd", "15", "1234", "15/01/2026", "", "", ""},
				[]interface{}{2, "MBSP/15/U24-2511/0121-PKM", "Tetuan XYZ Sdn Bhd", "16", "55", "16/01/2026", "", "", ""},
			),
		}},
		Params: januaryParams(),
	}
}

func TestCreateRunPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.svc.CreateRun(ctx, sampleRunInput(t))
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if !strings.HasPrefix(view.ID, "run_") || view.CreatedBy != "aminah" {
		t.Errorf("unexpected run header %+v", view)
	}
	if view.Total != 1 || len(view.Categories) != 5 || len(view.Categories[0].Rows) != 1 {
		t.Fatalf("expected the tabled application to be suppressed, got %+v", view.Categories)
	}
	row := view.Categories[0].Rows[0]
	if row.FailNo != "MBSP/15/U24-2511/0120-PKM" || row.Daerah != "SPU" || row.Deadline != "15.01.2026" {
		t.Errorf("unexpected row %+v", row)
	}
	if !strings.Contains(string(view.Stats), `"suppressed":1`) {
		t.Errorf("stats missing suppression count: %s", view.Stats)
	}

	stored, err := env.store.GetRun(ctx, view.ID)
	if err != nil {
		t.Fatalf("run not stored: %v", err)
	}
	if stored.ArchiveCommit == "" || stored.ArchiveCommit != view.ArchiveCommit {
		t.Errorf("archive commit not recorded: stored=%q view=%q", stored.ArchiveCommit, view.ArchiveCommit)
	}
	if stored.AgendaDigest == "" || len(stored.Sources) != 1 || stored.Sources[0] != "SPU.xlsx" {
		t.Errorf("unexpected stored inputs %+v", stored)
	}

	docs := env.search.indexed[view.ID]
	if len(docs) != 1 || docs[0].ID != search.DocID(view.ID, 1, 1) {
		t.Errorf("unexpected indexed docs %+v", docs)
	}

	wantKeys := []string{
		"runs/" + view.ID + "/agenda/agenda-jan.docx",
		"runs/" + view.ID + "/sheets/SPU.xlsx",
	}
	if strings.Join(env.blobs.keys, ",") != strings.Join(wantKeys, ",") {
		t.Errorf("blob keys = %v, want %v", env.blobs.keys, wantKeys)
	}

	if len(env.mail.sent) != 1 {
		t.Fatalf("expected one summary mail, got %d", len(env.mail.sent))
	}
	summary := env.mail.sent[0]
	if summary.Period != "2026-01" || summary.Total() != 1 || summary.Suppressed != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.Link != "https://osc.example.test/api/runs/"+view.ID {
		t.Errorf("unexpected link %q", summary.Link)
	}
}

func TestCreateRunReusesCachedAgenda(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateRun(ctx, sampleRunInput(t)); err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.CreateRun(ctx, sampleRunInput(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(second.Stats), `"agendaCache":true`) {
		t.Errorf("second run should hit the agenda cache: %s", second.Stats)
	}
	if len(env.cache.entries) != 1 {
		t.Errorf("expected one cached agenda, got %d", len(env.cache.entries))
	}
}

func TestCreateRunWithoutAgendaSuppressesNothing(t *testing.T) {
	env := newTestEnv(t)
	input := sampleRunInput(t)
	input.Agenda = nil
	input.AgendaName = ""

	view, err := env.svc.CreateRun(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if view.Total != 2 {
		t.Errorf("expected both rows reported, got %d", view.Total)
	}
}

func TestCreateRunValidation(t *testing.T) {
	env := newTestEnv(t)
	input := sampleRunInput(t)
	input.Sheets = nil
	input.Params.Review = permit.Window{}

	_, err := env.svc.CreateRun(context.Background(), input)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := domainErr.Details.(map[string]string)
	if details["xlsx"] == "" || details["ut"] == "" || details["km"] != "" {
		t.Errorf("unexpected details %v", details)
	}
}

func TestCreateRunRejectsBrokenAgenda(t *testing.T) {
	env := newTestEnv(t)
	input := sampleRunInput(t)
	input.Agenda = []byte("not a zip")

	_, err := env.svc.CreateRun(context.Background(), input)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNREADABLE_AGENDA" {
		t.Fatalf("expected UNREADABLE_AGENDA, got %v", err)
	}
	if len(env.store.runs) != 0 {
		t.Error("nothing should be stored for a rejected run")
	}
}

func TestCreateRunStoreFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.store.err = errors.New("disk full")

	_, err := env.svc.CreateRun(context.Background(), sampleRunInput(t))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(env.mail.sent) != 0 || len(env.search.indexed) != 0 {
		t.Error("side effects must not run after a failed store write")
	}
}

func TestOptionalDependenciesMayBeAbsent(t *testing.T) {
	st := newFakeStore()
	svc := New(config.Config{JWTSecret: "x", AccessTTL: time.Hour}, ref.New(vocab.Default()), Deps{Store: st})

	view, err := svc.CreateRun(context.Background(), sampleRunInput(t))
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if view.ArchiveCommit != "" {
		t.Errorf("no archive configured, got commit %q", view.ArchiveCommit)
	}
	if _, err := svc.RunHistory(context.Background(), view.ID); err == nil {
		t.Error("history without an archive should fail")
	}
	if _, err := svc.Periods(); err == nil {
		t.Error("periods without an archive should fail")
	}
	resp, err := svc.Search(context.Background(), search.Query{Text: "abc"})
	if err != nil || len(resp.Results) != 0 {
		t.Errorf("Search() = %+v, %v", resp, err)
	}
}

func TestRunHistoryDiffsAgainstPreviousRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := sampleRunInput(t)
	first.Agenda = nil
	if _, err := env.svc.CreateRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.CreateRun(ctx, sampleRunInput(t))
	if err != nil {
		t.Fatal(err)
	}

	history, err := env.svc.RunHistory(ctx, second.ID)
	if err != nil {
		t.Fatalf("RunHistory() error = %v", err)
	}
	if history["period"] != "2026-01" {
		t.Errorf("unexpected period %v", history["period"])
	}
	commits := history["history"].([]archive.Commit)
	if len(commits) != 2 || commits[0].Hash != second.ArchiveCommit {
		t.Fatalf("unexpected history %+v", commits)
	}
	changes := history["changes"].([]archive.Change)
	if len(changes) != 1 || changes[0].Kind != archive.Removed || changes[0].FailNo != "MBSP/15/U24-2511/0121-PKM" {
		t.Errorf("unexpected changes %+v", changes)
	}
}

func TestPeriodsListArchivedMonths(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	periods, err := env.svc.Periods()
	if err != nil || len(periods) != 0 {
		t.Fatalf("Periods() before any run = %v, %v", periods, err)
	}

	feb := sampleRunInput(t)
	feb.Params.KM = permit.Window{
		Start: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	for _, in := range []RunInput{sampleRunInput(t), feb} {
		if _, err := env.svc.CreateRun(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	periods, err = env.svc.Periods()
	if err != nil {
		t.Fatalf("Periods() error = %v", err)
	}
	if len(periods) != 2 || periods[0] != "2026-01" || periods[1] != "2026-02" {
		t.Fatalf("Periods() = %v", periods)
	}
}

func TestExportRunStoresArtifact(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.svc.ExportRun(context.Background(), "run_1", export.FormatHTML)
	if err != nil {
		t.Fatal(err)
	}
	if result.Filename != "lampiran-g.html" {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	if len(env.export.requests) != 1 || env.export.requests[0].RunID != "run_1" {
		t.Errorf("unexpected export requests %+v", env.export.requests)
	}
	if len(env.blobs.keys) != 1 || env.blobs.keys[0] != "runs/run_1/exports/lampiran-g.html" {
		t.Errorf("unexpected blob keys %v", env.blobs.keys)
	}
}

func TestPreviewSuppression(t *testing.T) {
	env := newTestEnv(t)
	agendaDoc := sampleRunInput(t).Agenda

	result, err := env.svc.PreviewSuppression(context.Background(), PreviewInput{
		Agenda: agendaDoc,
		Row:    permit.RawRow{Sheet: "BGN", Reference: "MPSP/15/U24-2511/0121-BGN", Applicant: "XYZ"},
	})
	if err != nil {
		t.Fatalf("PreviewSuppression() error = %v", err)
	}
	record := result["record"].(map[string]any)
	if record["parent"] != "MPSP/15/U24-2511/0121" || record["display"] != "MBSP/15/U24-2511/0121-BGN" {
		t.Errorf("unexpected record %+v", record)
	}
	if _, err := env.svc.PreviewSuppression(context.Background(), PreviewInput{Row: permit.RawRow{Reference: "x"}}); err == nil {
		t.Error("preview without agenda should fail")
	}
}

func TestLoginAndSession(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.svc.Login("Aminah", "operator-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.UserName != "aminah" || session.Role != "operator" {
		t.Errorf("unexpected session %+v", session)
	}
	parsed, err := env.svc.SessionFromToken(session.Token)
	if err != nil || parsed.UserName != "aminah" || parsed.JTI != session.JTI {
		t.Errorf("SessionFromToken() = %+v, %v", parsed, err)
	}

	if _, err := env.svc.Login("aminah", "wrong-password"); err == nil {
		t.Error("wrong password accepted")
	}
	if _, err := env.svc.SessionFromToken(session.Token + "x"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("tampered token: %v", err)
	}
}
