// Package export renders a Lampiran G report as HTML, PDF or DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts the format names used on the wire; empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return FormatPDF, nil
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(s), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for exporting a stored run
type Request struct {
	RunID  string
	Format Format
}

// Document is everything the template needs for one report.
type Document struct {
	Title       string
	RunID       string
	KMStart     time.Time
	KMEnd       time.Time
	UTStart     time.Time
	UTEnd       time.Time
	UTEnabled   bool
	GeneratedAt time.Time
	Sections    []Section
	Notes       string // markdown
}

// Section is one category table.
type Section struct {
	Heading string
	Rows    []Row
}

// Row is one table line. Tindakan and Perkara may span several lines.
type Row struct {
	Bil      int
	Tindakan string
	Jenis    string
	FailNo   string
	Pemohon  string
	Mukim    string
	Lot      string
	Perkara  string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrRunUnavailable indicates the run could not be loaded for export.
	ErrRunUnavailable = errors.New("export run unavailable")
	// ErrUnsupportedFormat indicates an unknown output format.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
