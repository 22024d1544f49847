package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/archive"
	"lampiran/api/internal/blob"
	"lampiran/api/internal/cache"
	"lampiran/api/internal/classify"
	"lampiran/api/internal/email"
	"lampiran/api/internal/export"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/search"
	"lampiran/api/internal/sheet"
	"lampiran/api/internal/store"
	"lampiran/api/internal/util"
)

const (
	agendaNamespace = "agenda"
	historyLimit    = 20
	xlsxMime        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	docxMime        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// RunInput is one classification request.
type RunInput struct {
	CreatedBy  string
	AgendaName string
	Agenda     []byte
	Sheets     []sheet.Source
	Params     classify.Params
	Notes      string
}

// RunView is a run with its report as returned to clients.
type RunView struct {
	ID            string          `json:"id"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     string          `json:"createdAt"`
	KM            permit.Window   `json:"km"`
	Review        *permit.Window  `json:"review,omitempty"`
	AgendaName    string          `json:"agendaName,omitempty"`
	Sources       []string        `json:"sources"`
	Stats         json.RawMessage `json:"stats,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ArchiveCommit string          `json:"archiveCommit,omitempty"`
	Total         int             `json:"total"`
	Categories    []CategoryView  `json:"categories,omitempty"`
}

type CategoryView struct {
	Heading string              `json:"heading"`
	Rows    []store.CategoryRow `json:"rows"`
}

// RunStats is what the stats column holds: classifier counts plus the agenda
// parse summary.
type RunStats struct {
	classify.Stats
	Agenda      *agenda.Stats `json:"agenda,omitempty"`
	AgendaCache bool          `json:"agendaCache"`
}

// CreateRun reads the workbooks and agenda, classifies, stores the result
// and fans it out to search, blob storage, the archive and mail. Only the
// store write is fatal.
func (s *Service) CreateRun(ctx context.Context, in RunInput) (RunView, error) {
	if err := validateRunInput(in); err != nil {
		return RunView{}, err
	}

	rows, err := s.sheets.ReadAll(ctx, in.Sheets)
	if err != nil {
		if errors.Is(err, sheet.ErrUnreadableWorkbook) {
			return RunView{}, domainError(http.StatusUnprocessableEntity, "UNREADABLE_WORKBOOK", err.Error(), nil)
		}
		return RunView{}, err
	}

	idx, cached, err := s.agendaIndex(ctx, in.Agenda)
	if err != nil {
		return RunView{}, err
	}

	report := s.engine.RunRows(rows, idx, in.Params)
	stats := RunStats{Stats: report.Stats, AgendaCache: cached}
	if idx != nil {
		agendaStats := idx.Stats()
		stats.Agenda = &agendaStats
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return RunView{}, fmt.Errorf("marshal stats: %w", err)
	}

	run := store.Run{
		ID:            util.NewID("run"),
		CreatedBy:     in.CreatedBy,
		CreatedAt:     s.now().UTC(),
		KMStart:       in.Params.KM.Start,
		KMEnd:         in.Params.KM.End,
		UTStart:       in.Params.Review.Start,
		UTEnd:         in.Params.Review.End,
		ReviewEnabled: in.Params.ReviewEnabled,
		AgendaName:    in.AgendaName,
		Sources:       sourceNames(in.Sheets),
		Stats:         statsJSON,
		Notes:         in.Notes,
		Total:         report.Total(),
	}
	if len(in.Agenda) > 0 {
		run.AgendaDigest = cache.Key(agendaNamespace, in.Agenda)
	}
	categoryRows := toCategoryRows(run.ID, report)
	if err := s.deps.Store.CreateRun(ctx, run, categoryRows); err != nil {
		return RunView{}, fmt.Errorf("store run: %w", err)
	}
	s.logger.Info("run stored",
		zap.String("run", run.ID),
		zap.String("user", run.CreatedBy),
		zap.Int("rows", report.Stats.Rows),
		zap.Int("pending", report.Stats.Pending),
		zap.Int("suppressed", report.Stats.Suppressed),
		zap.Int("total", run.Total),
	)

	if s.deps.Search != nil {
		s.deps.Search.IndexRun(run.ID, search.DocsFromRows(categoryRows))
	}
	s.storeInputs(ctx, run.ID, in)
	run.ArchiveCommit = s.archiveRun(ctx, run, report)
	s.notify(run, report)

	return toRunView(run, categoryRows), nil
}

func validateRunInput(in RunInput) error {
	details := map[string]string{}
	if len(in.Sheets) == 0 {
		details["xlsx"] = "at least one workbook is required"
	}
	if in.Params.KM.Start.IsZero() || in.Params.KM.End.IsZero() {
		details["km"] = "processing window is required"
	}
	if in.Params.ReviewEnabled && (in.Params.Review.Start.IsZero() || in.Params.Review.End.IsZero()) {
		details["ut"] = "review window is required unless disabled"
	}
	if len(details) > 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid run request", details)
	}
	return nil
}

// agendaIndex parses the agenda, going through the cache when there is one.
// No agenda means nothing is suppressed.
func (s *Service) agendaIndex(ctx context.Context, data []byte) (*agenda.Index, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}
	parse := func() (*agenda.Index, error) {
		text, err := agenda.Extract(ctx, data, s.deps.OCR, s.cfg.OCRMinChars)
		if err != nil {
			return nil, err
		}
		return agenda.Parse(text, s.norm), nil
	}

	var (
		idx    *agenda.Index
		cached bool
		err    error
	)
	if s.deps.Cache != nil {
		idx, cached, err = s.deps.Cache.GetOrParse(ctx, cache.Key(agendaNamespace, data), parse)
	} else {
		idx, err = parse()
	}
	if err != nil {
		if errors.Is(err, agenda.ErrNotDocx) {
			return nil, false, domainError(http.StatusUnprocessableEntity, "UNREADABLE_AGENDA", err.Error(), nil)
		}
		return nil, false, fmt.Errorf("parse agenda: %w", err)
	}
	return idx, cached, nil
}

func (s *Service) storeInputs(ctx context.Context, runID string, in RunInput) {
	if s.deps.Blobs == nil {
		return
	}
	if len(in.Agenda) > 0 {
		key := blob.ObjectKey(runID, blob.KindAgenda, in.AgendaName)
		if err := s.deps.Blobs.Put(ctx, key, in.Agenda, docxMime); err != nil {
			s.logger.Warn("store agenda", zap.String("run", runID), zap.Error(err))
		}
	}
	for _, src := range in.Sheets {
		key := blob.ObjectKey(runID, blob.KindSheet, src.Name)
		if err := s.deps.Blobs.Put(ctx, key, src.Data, xlsxMime); err != nil {
			s.logger.Warn("store workbook", zap.String("run", runID), zap.String("name", src.Name), zap.Error(err))
		}
	}
}

func (s *Service) archiveRun(ctx context.Context, run store.Run, report classify.Report) string {
	if s.deps.Archive == nil {
		return ""
	}
	commit, err := s.deps.Archive.Record(archive.Snapshot{
		RunID:     run.ID,
		Period:    archive.Period(run.KMEnd),
		CreatedBy: run.CreatedBy,
		Report:    report,
	})
	if err != nil {
		s.logger.Warn("archive run", zap.String("run", run.ID), zap.Error(err))
		return ""
	}
	if err := s.deps.Store.SetArchiveCommit(ctx, run.ID, commit.Hash); err != nil {
		s.logger.Warn("record archive commit", zap.String("run", run.ID), zap.Error(err))
	}
	return commit.Hash
}

func (s *Service) notify(run store.Run, report classify.Report) {
	if s.deps.Mail == nil || !s.deps.Mail.IsConfigured() || len(s.cfg.NotifyTo) == 0 {
		return
	}
	summary := email.RunSummary{
		RunID:      run.ID,
		Period:     archive.Period(run.KMEnd),
		CreatedBy:  run.CreatedBy,
		Pending:    report.Stats.Pending,
		Suppressed: report.Stats.Suppressed,
		Link:       strings.TrimRight(s.cfg.PublicURL, "/") + "/api/runs/" + run.ID,
	}
	for i, heading := range export.CategoryHeadings {
		summary.Categories = append(summary.Categories, email.CategoryCount{Title: heading, Rows: len(report.Categories[i])})
	}
	if err := s.deps.Mail.SendRunSummary(s.cfg.NotifyTo, summary); err != nil {
		s.logger.Warn("send run summary", zap.String("run", run.ID), zap.Error(err))
	}
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]RunView, error) {
	runs, err := s.deps.Store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run, nil))
	}
	return views, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (RunView, error) {
	run, err := s.deps.Store.GetRun(ctx, runID)
	if err != nil {
		return RunView{}, err
	}
	rows, err := s.deps.Store.ListRecords(ctx, runID, 0)
	if err != nil {
		return RunView{}, err
	}
	return toRunView(run, rows), nil
}

func (s *Service) ExportRun(ctx context.Context, runID string, format export.Format) (*export.Result, error) {
	result, err := s.deps.Export.Export(ctx, export.Request{RunID: runID, Format: format})
	if err != nil {
		return nil, err
	}
	if s.deps.Blobs != nil {
		key := blob.ObjectKey(runID, blob.KindExport, result.Filename)
		if err := s.deps.Blobs.Put(ctx, key, result.Data, result.MimeType); err != nil {
			s.logger.Warn("store export", zap.String("run", runID), zap.Error(err))
		}
	}
	return result, nil
}

// RunHistory lists the archived runs of the run's period and the rows that
// changed since the previous run of that period.
func (s *Service) RunHistory(ctx context.Context, runID string) (map[string]any, error) {
	run, err := s.deps.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if s.deps.Archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Run archive is not configured", nil)
	}
	period := archive.Period(run.KMEnd)
	commits, err := s.deps.Archive.History(period, historyLimit)
	if errors.Is(err, archive.ErrUnknownPeriod) {
		commits = []archive.Commit{}
	} else if err != nil {
		return nil, err
	}

	changes := []archive.Change{}
	for i, commit := range commits {
		if commit.Hash != run.ArchiveCommit || i+1 >= len(commits) {
			continue
		}
		current, _, err := s.deps.Archive.ReportAt(commit.Hash)
		if err != nil {
			return nil, err
		}
		previous, _, err := s.deps.Archive.ReportAt(commits[i+1].Hash)
		if err != nil {
			return nil, err
		}
		changes = archive.Diff(previous, current)
		break
	}

	return map[string]any{
		"runId":   run.ID,
		"period":  period,
		"commit":  run.ArchiveCommit,
		"history": commits,
		"changes": changes,
	}, nil
}

// Periods lists the reporting periods that have archived runs.
func (s *Service) Periods() ([]string, error) {
	if s.deps.Archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Run archive is not configured", nil)
	}
	periods, err := s.deps.Archive.Periods()
	if err != nil {
		return nil, err
	}
	if periods == nil {
		periods = []string{}
	}
	return periods, nil
}

// PreviewInput is one spreadsheet row checked against an agenda.
type PreviewInput struct {
	Agenda []byte
	Row    permit.RawRow
}

// PreviewSuppression explains whether the agenda would suppress the row.
func (s *Service) PreviewSuppression(ctx context.Context, in PreviewInput) (map[string]any, error) {
	if len(in.Agenda) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "agenda is required", nil)
	}
	rec, ok := s.enricher.Enrich(in.Row)
	if !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "reference or applicant is required", nil)
	}
	idx, _, err := s.agendaIndex(ctx, in.Agenda)
	if err != nil {
		return nil, err
	}
	decision := s.engine.Matcher(idx).Explain(rec)
	return map[string]any{
		"decision": decision,
		"record": map[string]any{
			"display": rec.Display,
			"parent":  rec.Parent,
			"codes":   rec.Codes.Ordered(s.norm.Vocabulary()),
			"lots":    rec.LotTokens,
		},
	}, nil
}

func sourceNames(sources []sheet.Source) []string {
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, filepath.Base(src.Name))
	}
	return names
}

func toCategoryRows(runID string, report classify.Report) []store.CategoryRow {
	var rows []store.CategoryRow
	for _, records := range report.Categories {
		for _, rec := range records {
			rows = append(rows, store.CategoryRow{
				RunID:    runID,
				Category: rec.Category,
				Sequence: rec.Sequence,
				Tindakan: rec.Tindakan,
				Jenis:    rec.Jenis,
				FailNo:   rec.FailNo,
				Pemohon:  rec.Applicant,
				Mukim:    rec.Mukim,
				Lot:      rec.Lot,
				Perkara:  rec.Perkara,
				Daerah:   rec.District,
				Deadline: permit.FormatDate(rec.Deadline),
			})
		}
	}
	return rows
}

func toRunView(run store.Run, rows []store.CategoryRow) RunView {
	view := RunView{
		ID:            run.ID,
		CreatedBy:     run.CreatedBy,
		CreatedAt:     run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		KM:            permit.Window{Start: run.KMStart, End: run.KMEnd},
		AgendaName:    run.AgendaName,
		Sources:       run.Sources,
		Stats:         run.Stats,
		Notes:         run.Notes,
		ArchiveCommit: run.ArchiveCommit,
		Total:         run.Total,
	}
	if view.Sources == nil {
		view.Sources = []string{}
	}
	if run.ReviewEnabled {
		view.Review = &permit.Window{Start: run.UTStart, End: run.UTEnd}
	}
	if rows == nil {
		return view
	}
	view.Categories = make([]CategoryView, len(export.CategoryHeadings))
	for i, heading := range export.CategoryHeadings {
		view.Categories[i] = CategoryView{Heading: heading, Rows: []store.CategoryRow{}}
	}
	for _, r := range rows {
		if r.Category >= 1 && r.Category <= len(view.Categories) {
			view.Categories[r.Category-1].Rows = append(view.Categories[r.Category-1].Rows, r)
		}
	}
	return view
}
