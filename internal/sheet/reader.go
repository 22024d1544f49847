// Package sheet reads the per-district permit workbooks into raw rows.
package sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lampiran/api/internal/permit"
	"lampiran/api/internal/vocab"
)

var ErrUnreadableWorkbook = errors.New("unreadable workbook")

const (
	headerScanRows  = 80
	unknownDistrict = "UNKNOWN"
)

var headerHints = []string{
	"No. Rujukan OSC",
	"No. Rujukan",
	"Rujukan OSC",
	"Pemaju",
	"Pemohon",
	"Daerah",
	"Mukim",
	"Seks",
	"Lot",
	"Tempoh Untuk Proses",
	"Tempoh Untuk Diberi",
	"Tarikh Keputusan",
}

type column string

const (
	colReference column = "reference"
	colApplicant column = "applicant"
	colMukim     column = "mukim"
	colLot       column = "lot"
	colProcess   column = "process"
	colReview    column = "review"
	colPending   column = "pending"
	colDecision  column = "decision"
)

// columnNeedles are matched, in order, against header cells reduced to
// lower-case letters and digits.
var columnNeedles = []struct {
	col     column
	needles []string
}{
	{colReference, []string{"norujukanosc", "rujukanosc", "failno", "norujukan"}},
	{colApplicant, []string{"pemajupemohon", "pemaju", "pemohon", "tetuan"}},
	{colMukim, []string{"mukimseksyen", "mukim", "seksyen"}},
	{colLot, []string{"lot"}},
	{colProcess, []string{"tempohuntukprosesolehjabataninduk", "tempohuntukproses"}},
	{colReview, []string{"tempohuntukdiberiulasanolehjabatanteknikal", "tempohuntukdiberiulasan"}},
	{colPending, []string{"jabatanindukteknikalygbelummemberikeputusanulasansehinggakini", "belummemberikeputusanulasan", "belummemberikeputusan", "belummemberi"}},
	{colDecision, []string{"tarikhkeputusankuasa", "tarikhkeputusan"}},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func normHeader(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// Source is one uploaded workbook.
type Source struct {
	Name string
	Data []byte
}

type Reader struct {
	vocab  *vocab.Vocabulary
	logger *zap.Logger
}

func NewReader(v *vocab.Vocabulary, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{vocab: v, logger: logger}
}

// District picks the district code named in a workbook file name.
func (r *Reader) District(filename string) string {
	upper := strings.ToUpper(filename)
	for _, d := range r.vocab.Districts {
		if strings.Contains(upper, strings.ToUpper(d)) {
			return strings.ToUpper(d)
		}
	}
	return unknownDistrict
}

// ReadAll reads every source concurrently. Rows come back grouped by source
// in the order the sources were given.
func (r *Reader) ReadAll(ctx context.Context, sources []Source) ([]permit.RawRow, error) {
	results := make([][]permit.RawRow, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := r.Read(src)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []permit.RawRow
	for _, rows := range results {
		out = append(out, rows...)
	}
	return out, nil
}

// Read extracts the rows of every allowed sheet of one workbook. Sheets
// without a recognizable header or without reference and applicant columns
// are skipped.
func (r *Reader) Read(src Source) ([]permit.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableWorkbook, src.Name, err)
	}
	defer f.Close()

	district := r.District(src.Name)
	var out []permit.RawRow
	for _, name := range f.GetSheetList() {
		if !r.vocab.SheetAllowed(name) {
			continue
		}
		grid, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", ErrUnreadableWorkbook, src.Name, name, err)
		}
		header, ok := findHeader(grid)
		if !ok {
			r.logger.Debug("sheet skipped: no header", zap.String("file", src.Name), zap.String("sheet", name))
			continue
		}
		cols := detectColumns(grid[header])
		if _, ok := cols[colReference]; !ok {
			r.logger.Debug("sheet skipped: no reference column", zap.String("file", src.Name), zap.String("sheet", name))
			continue
		}
		if _, ok := cols[colApplicant]; !ok {
			r.logger.Debug("sheet skipped: no applicant column", zap.String("file", src.Name), zap.String("sheet", name))
			continue
		}

		sheetName := strings.TrimSpace(name)
		read := 0
		for _, cells := range grid[header+1:] {
			get := func(c column) string {
				idx, ok := cols[c]
				if !ok || idx >= len(cells) {
					return ""
				}
				return cleanCell(cells[idx])
			}
			row := permit.RawRow{
				District:         district,
				Sheet:            sheetName,
				Reference:        get(colReference),
				Applicant:        get(colApplicant),
				Mukim:            get(colMukim),
				Lot:              get(colLot),
				ProcessDeadline:  get(colProcess),
				ReviewDeadline:   get(colReview),
				PendingReviewers: get(colPending),
				Decision:         get(colDecision),
			}
			if row.Reference == "" && row.Applicant == "" {
				continue
			}
			out = append(out, row)
			read++
		}
		r.logger.Debug("sheet read", zap.String("file", src.Name), zap.String("sheet", name), zap.Int("rows", read))
	}
	return out, nil
}

// findHeader returns the row among the first rows that names the most header
// hints.
func findHeader(grid [][]string) (int, bool) {
	best, bestScore := -1, 0
	for i, cells := range grid {
		if i >= headerScanRows {
			break
		}
		joined := strings.ToLower(strings.Join(cells, " | "))
		score := 0
		for _, hint := range headerHints {
			if strings.Contains(joined, strings.ToLower(hint)) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore > 0
}

func detectColumns(header []string) map[column]int {
	normalized := make([]string, len(header))
	for i, cell := range header {
		normalized[i] = normHeader(cell)
	}
	found := map[column]int{}
	for _, cand := range columnNeedles {
	needles:
		for _, needle := range cand.needles {
			for i, cell := range normalized {
				if strings.Contains(cell, needle) {
					found[cand.col] = i
					break needles
				}
			}
		}
	}
	return found
}

func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}
