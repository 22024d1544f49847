package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lampiran/api/internal/classify"
	"lampiran/api/internal/store"
	"lampiran/api/internal/vocab"
)

// DataStore is the slice of the run store the exporter reads.
type DataStore interface {
	GetRun(ctx context.Context, runID string) (store.Run, error)
	ListRecords(ctx context.Context, runID string, category int) ([]store.CategoryRow, error)
}

type renderFunc func(ctx context.Context, html string) ([]byte, error)

// Service provides report export functionality
type Service struct {
	store DataStore
	pdf   renderFunc
	docx  renderFunc
	now   func() time.Time
}

// NewService creates a new export service. store may be nil when only
// Render is used.
func NewService(store DataStore) *Service {
	return &Service{store: store, pdf: renderPDF, docx: renderDOCX, now: time.Now}
}

// Export renders a stored run in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if s.store == nil {
		return nil, ErrRunUnavailable
	}
	run, err := s.store.GetRun(ctx, req.RunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRunUnavailable, err)
	}
	rows, err := s.store.ListRecords(ctx, req.RunID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunUnavailable, err)
	}

	doc := Document{
		RunID:       run.ID,
		KMStart:     run.KMStart,
		KMEnd:       run.KMEnd,
		UTStart:     run.UTStart,
		UTEnd:       run.UTEnd,
		UTEnabled:   run.ReviewEnabled,
		GeneratedAt: s.now(),
		Sections:    FromRows(rows),
		Notes:       run.Notes,
	}
	return s.Render(ctx, doc, req.Format)
}

// Render produces the bytes of doc in format.
func (s *Service) Render(ctx context.Context, doc Document, format Format) (*Result, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	name := "lampiran-g"
	if !doc.KMEnd.IsZero() {
		name += "-" + doc.KMEnd.Format("2006-01-02")
	}
	name = sanitizeFilename(name)

	switch format {
	case FormatHTML:
		return &Result{Data: []byte(html), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: name + ".pdf", MimeType: "application/pdf"}, nil
	case FormatDOCX:
		data, err := s.docx(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: name + ".docx",
			MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// FromReport lays out a freshly classified report. Every category gets a
// section, empty or not.
func FromReport(report classify.Report) []Section {
	sections := make([]Section, vocab.CategoryCount)
	for i := range sections {
		sections[i].Heading = CategoryHeadings[i]
		for _, rec := range report.Categories[i] {
			sections[i].Rows = append(sections[i].Rows, Row{
				Bil:      rec.Sequence,
				Tindakan: rec.Tindakan,
				Jenis:    rec.Jenis,
				FailNo:   rec.FailNo,
				Pemohon:  rec.Applicant,
				Mukim:    rec.Mukim,
				Lot:      rec.Lot,
				Perkara:  rec.Perkara,
			})
		}
	}
	return sections
}

// FromRows lays out persisted rows, which arrive ordered by category then
// sequence.
func FromRows(rows []store.CategoryRow) []Section {
	sections := make([]Section, vocab.CategoryCount)
	for i := range sections {
		sections[i].Heading = CategoryHeadings[i]
	}
	for _, r := range rows {
		if r.Category < 1 || r.Category > vocab.CategoryCount {
			continue
		}
		sections[r.Category-1].Rows = append(sections[r.Category-1].Rows, Row{
			Bil:      r.Sequence,
			Tindakan: r.Tindakan,
			Jenis:    r.Jenis,
			FailNo:   r.FailNo,
			Pemohon:  r.Pemohon,
			Mukim:    r.Mukim,
			Lot:      r.Lot,
			Perkara:  r.Perkara,
		})
	}
	return sections
}
