// Package vocab holds the closed vocabularies and rule tables that drive
// reference parsing and report classification.
package vocab

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category numbers follow the Lampiran G layout.
const (
	CategoryPlanningBuilding = 1
	CategoryTechnicalReview  = 2
	CategoryEngineering      = 3
	CategoryLandscape        = 4
	CategorySurveySpecial    = 5
	CategoryCount            = 5
)

var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// DeadlineRule routes groups whose codes intersect Codes to Department within
// Category when the process deadline falls inside the KM window. Concurrent
// groups are matched against ConcurrentCodes instead when it is set.
type DeadlineRule struct {
	Category        int      `yaml:"category"`
	Department      string   `yaml:"department"`
	Codes           []string `yaml:"codes"`
	ConcurrentCodes []string `yaml:"concurrent_codes"`
}

type Vocabulary struct {
	CanonicalPrefix        string              `yaml:"canonical_prefix"`
	LegacyPrefixes         []string            `yaml:"legacy_prefixes"`
	Codes                  []string            `yaml:"codes"`
	QualifierTags          []string            `yaml:"qualifier_tags"`
	SheetCodes             map[string][]string `yaml:"sheet_codes"`
	AllowedSheets          []string            `yaml:"allowed_sheets"`
	// nil means every allowed sheet
	AgendaFilterableSheets []string            `yaml:"agenda_filterable_sheets"`
	ReviewSheets           []string            `yaml:"review_sheets"`
	ConcurrentSheet        string              `yaml:"concurrent_sheet"`
	ConcurrentMarker       string              `yaml:"concurrent_marker"`
	ReviewOwners           []string            `yaml:"review_owners"`
	ExemptCode             string              `yaml:"exempt_code"`
	Departments            map[string]string   `yaml:"departments"`
	DeadlineRules          []DeadlineRule      `yaml:"deadline_rules"`
	Districts              []string            `yaml:"districts"`
	Placeholders           []string            `yaml:"placeholders"`
	OCRMinChars            int                 `yaml:"ocr_min_chars"`

	known      map[string]int
	sheets     map[string]struct{}
	filterable map[string]struct{}
	review     map[string]struct{}
	owners     map[string]struct{}
	districts  map[string]int
	blanks     map[string]struct{}
}

func Default() *Vocabulary {
	v := &Vocabulary{
		CanonicalPrefix: "MBSP",
		LegacyPrefixes:  []string{"MPSP", "MBPS", "MPPS"},
		Codes: []string{
			"PKM", "TKR-GUNA", "TKR", "124A", "204D", "PS", "SB", "CT",
			"KTUP", "LJUP", "JP", "PL", "BGN", "EVCB", "EV", "TELCO",
		},
		QualifierTags: []string{"204D"},
		SheetCodes: map[string][]string{
			"BGN EVCB":      {"BGN", "EVCB"},
			"PKM TUKARGUNA": {"TKR-GUNA"},
		},
		AllowedSheets: []string{
			"SERENTAK", "PKM", "TKR-GUNA", "TKR", "PKM TUKARGUNA", "BGN", "BGN EVCB",
			"EVCB", "EV", "TELCO", "PS", "SB", "CT", "PL", "KTUP", "JP", "LJUP",
		},
		ReviewSheets:     []string{"SERENTAK", "PKM", "BGN", "BGN EVCB", "TKR-GUNA", "PKM TUKARGUNA"},
		ConcurrentSheet:  "SERENTAK",
		ConcurrentMarker: "SERENTAK",
		ReviewOwners:     []string{"PB", "PKM", "BGN"},
		ExemptCode:       "PTJ",
		Departments: map[string]string{
			"KEJ":   "Pengarah Kejuruteraan",
			"PB":    "Pengarah Perancang Bandar",
			"BGN":   "Pengarah Bangunan",
			"COB":   "Pengarah COB",
			"KES":   "Pengarah Kesihatan",
			"PEN":   "Pengarah Penilaian",
			"PBRN":  "Pengarah Perbandaran",
			"LESEN": "Pengarah Pelesenan",
			"JL":    "Pengarah Landskap",
		},
		DeadlineRules: []DeadlineRule{
			{
				Category:        CategoryPlanningBuilding,
				Department:      "Pengarah Perancang Bandar",
				Codes:           []string{"PKM", "TKR-GUNA", "TKR"},
				ConcurrentCodes: []string{"PKM", "TKR-GUNA", "TKR", "124A", "204D"},
			},
			{Category: CategoryPlanningBuilding, Department: "Pengarah Bangunan", Codes: []string{"BGN", "EVCB", "EV", "TELCO"}},
			{Category: CategoryEngineering, Department: "Pengarah Kejuruteraan", Codes: []string{"KTUP", "LJUP", "JP"}},
			{Category: CategoryLandscape, Department: "Pengarah Landskap", Codes: []string{"PL"}},
			{Category: CategorySurveySpecial, Department: "Pengarah Perancang Bandar", Codes: []string{"PS", "SB", "CT", "124A", "204D"}},
		},
		Districts:    []string{"SPU", "SPS", "SPT"},
		Placeholders: []string{"-", "—", "–", "n/a", "na", "nil", "tiada"},
		OCRMinChars:  200,
	}
	v.Reindex()
	return v
}

// Load overlays the YAML file at path on the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (*Vocabulary, error) {
	v := Default()
	if strings.TrimSpace(path) == "" {
		return v, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	v.Reindex()
	return v, nil
}

func (v *Vocabulary) Validate() error {
	if len(v.Codes) == 0 {
		return fmt.Errorf("%w: empty code vocabulary", ErrInvalidVocabulary)
	}
	if strings.TrimSpace(v.CanonicalPrefix) == "" {
		return fmt.Errorf("%w: canonical prefix is required", ErrInvalidVocabulary)
	}
	known := make(map[string]struct{}, len(v.Codes))
	for _, code := range v.Codes {
		known[strings.ToUpper(code)] = struct{}{}
	}
	for i, rule := range v.DeadlineRules {
		if rule.Category < 1 || rule.Category > CategoryCount || rule.Category == CategoryTechnicalReview {
			return fmt.Errorf("%w: deadline rule %d has category %d", ErrInvalidVocabulary, i, rule.Category)
		}
		if strings.TrimSpace(rule.Department) == "" {
			return fmt.Errorf("%w: deadline rule %d has no department", ErrInvalidVocabulary, i)
		}
		for _, code := range append(append([]string(nil), rule.Codes...), rule.ConcurrentCodes...) {
			if _, ok := known[strings.ToUpper(code)]; !ok {
				return fmt.Errorf("%w: deadline rule %d names unknown code %q", ErrInvalidVocabulary, i, code)
			}
		}
	}
	return nil
}

// Reindex rebuilds the lookup tables after the exported fields change.
func (v *Vocabulary) Reindex() {
	v.known = make(map[string]int, len(v.Codes))
	for i, code := range v.Codes {
		v.known[strings.ToUpper(code)] = i
	}
	v.sheets = toSet(v.AllowedSheets, SheetName)
	filterable := v.AgendaFilterableSheets
	if filterable == nil {
		filterable = v.AllowedSheets
	}
	v.filterable = toSet(filterable, SheetName)
	v.review = toSet(v.ReviewSheets, SheetName)
	v.owners = toSet(v.ReviewOwners, strings.ToUpper)
	v.blanks = toSet(v.Placeholders, strings.ToLower)
	v.districts = make(map[string]int, len(v.Districts))
	for i, d := range v.Districts {
		v.districts[strings.ToUpper(d)] = i
	}
	sheetCodes := make(map[string][]string, len(v.SheetCodes))
	for sheet, codes := range v.SheetCodes {
		sheetCodes[SheetName(sheet)] = codes
	}
	v.SheetCodes = sheetCodes
}

func toSet(values []string, canon func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, value := range values {
		out[canon(value)] = struct{}{}
	}
	return out
}

// SheetName canonicalizes a worksheet name: trimmed, single-spaced, upper case.
func SheetName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

func (v *Vocabulary) IsCode(token string) bool {
	_, ok := v.known[token]
	return ok
}

// CodeRank is the canonical display position of a code; unknown codes sort last.
func (v *Vocabulary) CodeRank(code string) int {
	if rank, ok := v.known[code]; ok {
		return rank
	}
	return len(v.known)
}

// CodesBySpecificity returns the vocabulary longest code first, so that
// regexp alternations prefer TKR-GUNA over TKR.
func (v *Vocabulary) CodesBySpecificity() []string {
	out := make([]string, 0, len(v.Codes))
	for _, code := range v.Codes {
		out = append(out, strings.ToUpper(code))
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// SheetImpliedCodes lists the codes implied by a canonical sheet name.
func (v *Vocabulary) SheetImpliedCodes(sheet string) []string {
	sheet = SheetName(sheet)
	if codes, ok := v.SheetCodes[sheet]; ok {
		return codes
	}
	if v.IsCode(sheet) {
		return []string{sheet}
	}
	return nil
}

func (v *Vocabulary) SheetAllowed(sheet string) bool {
	_, ok := v.sheets[SheetName(sheet)]
	return ok
}

func (v *Vocabulary) AgendaFilterable(sheet string) bool {
	_, ok := v.filterable[SheetName(sheet)]
	return ok
}

// ReviewEligible reports whether rows on sheet may appear in the technical
// review category. Sheets not listed still qualify when their name reads as a
// change-of-use sheet (TKR or TUKAR together with GUNA).
func (v *Vocabulary) ReviewEligible(sheet string) bool {
	sheet = SheetName(sheet)
	if _, ok := v.review[sheet]; ok {
		return true
	}
	return strings.Contains(sheet, "GUNA") && (strings.Contains(sheet, "TKR") || strings.Contains(sheet, "TUKAR"))
}

func (v *Vocabulary) ReviewOwnerAllowed(code string) bool {
	_, ok := v.owners[strings.ToUpper(code)]
	return ok
}

func (v *Vocabulary) IsConcurrentSheet(sheet string) bool {
	return SheetName(sheet) == SheetName(v.ConcurrentSheet)
}

// DistrictRank orders known districts by configured priority; unknown
// districts sort after all known ones.
func (v *Vocabulary) DistrictRank(district string) int {
	if rank, ok := v.districts[strings.ToUpper(strings.TrimSpace(district))]; ok {
		return rank
	}
	return len(v.districts) + 1
}

func (v *Vocabulary) IsPlaceholder(text string) bool {
	_, ok := v.blanks[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Department resolves an internal department abbreviation.
func (v *Vocabulary) Department(abbrev string) (string, bool) {
	title, ok := v.Departments[abbrev]
	return title, ok
}
