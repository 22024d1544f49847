package permit

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"lampiran/api/internal/vocab"
)

var (
	dayFirst   = regexp.MustCompile(`(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})`)
	yearFirst  = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	dashesOnly = regexp.MustCompile(`^[-–—\s]+$`)
	digitRun   = regexp.MustCompile(`\d+`)
	lotStop    = regexp.MustCompile(`(?i)\b(?:mukim|daerah|bandar)\b`)
	ownerRun   = regexp.MustCompile(`[A-Z]{2,5}`)
	honorific  = regexp.MustCompile(`\b(?:tetuan|tuan|puan)\b`)
	company    = regexp.MustCompile(`\b(?:sdn\.?\s*bhd\.?|bhd|berhad|enterprises|enterprise|plc|llp|ltd)\b`)
	wordRun    = regexp.MustCompile(`[a-z0-9]+`)
	anyDate    = regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{4}`)
)

var ErrBadWindow = errors.New("window needs a valid start and end date")

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate reads a deadline cell. It accepts Excel serial numbers,
// d/m/yyyy and yyyy-m-d forms, and returns the zero time when nothing
// parses.
func ParseDate(cell string) time.Time {
	s := strings.TrimSpace(cell)
	if s == "" || strings.EqualFold(s, "nan") {
		return time.Time{}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial > 20000 && serial < 60000 {
			return excelEpoch.AddDate(0, 0, int(serial))
		}
		return time.Time{}
	}
	if m := dayFirst.FindStringSubmatch(s); m != nil {
		return civil(m[3], m[2], m[1])
	}
	if m := yearFirst.FindStringSubmatch(s); m != nil {
		return civil(m[1], m[2], m[3])
	}
	return time.Time{}
}

func civil(year, month, day string) time.Time {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		// 31/02 and friends roll over; treat them as unparseable.
		return time.Time{}
	}
	return t
}

// FormatDate renders a date as DD.MM.YYYY, or "" for the null date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseWindow reads a "start-end" pair such as 08/01/2026-27/01/2026. Any
// date form ParseDate accepts may be used on either side.
func ParseWindow(s string) (Window, error) {
	dates := anyDate.FindAllString(s, -1)
	if len(dates) != 2 {
		return Window{}, ErrBadWindow
	}
	return NewWindow(dates[0], dates[1])
}

// NewWindow parses the two bounds of a window separately.
func NewWindow(start, end string) (Window, error) {
	w := Window{Start: ParseDate(start), End: ParseDate(end)}
	if w.Start.IsZero() || w.End.IsZero() || w.End.Before(w.Start) {
		return Window{}, ErrBadWindow
	}
	return w, nil
}

func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(w.Start) && !t.After(w.End)
}

// Blankish reports whether text is empty, a placeholder such as "-" or
// "tiada", or only dashes.
func Blankish(text string, v *vocab.Vocabulary) bool {
	s := strings.TrimSpace(text)
	if s == "" || strings.EqualFold(s, "nan") {
		return true
	}
	if v.IsPlaceholder(s) {
		return true
	}
	return dashesOnly.MatchString(s)
}

// LotTokens extracts the lot numbers from free lot text. Anything from the
// first Mukim/Daerah/Bandar keyword on is address, not lot.
func LotTokens(text string) []string {
	if loc := lotStop.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	text = strings.ReplaceAll(text, "&", ",")
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range digitRun.FindAllString(text, -1) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// ApplicantTokens reduces an applicant name to its core tokens: honorifics
// and company suffixes removed, tokens shorter than three letters dropped.
func ApplicantTokens(name string) []string {
	s := strings.ToLower(norm.NFKC.String(name))
	s = honorific.ReplaceAllString(s, " ")
	s = company.ReplaceAllString(s, " ")
	var out []string
	for _, tok := range wordRun.FindAllString(s, -1) {
		if len(tok) >= 3 || isDigits(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// ApplicantKey is the space-joined core token list.
func ApplicantKey(name string) string {
	return strings.Join(ApplicantTokens(name), " ")
}

// OwnerCode is the process-owner code declared at the end of a deadline cell,
// e.g. "15/01/2026 (PB)" yields "PB".
func OwnerCode(cell string) string {
	runs := ownerRun.FindAllString(strings.ToUpper(cell), -1)
	if len(runs) == 0 {
		return ""
	}
	return runs[len(runs)-1]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
