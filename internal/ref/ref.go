// Package ref parses OSC permit reference numbers into matching keys, display
// strings, permit-type codes and parent filing keys.
package ref

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"lampiran/api/internal/vocab"
)

var (
	separators = strings.NewReplacer(
		"-", "", "/", "", `\`, "", "(", "", ")", "", "[", "", "]", "",
		"{", "", "}", "", "+", "", ".", "", ",", "", ":", "", ";", "",
	)
	noteGroup  = regexp.MustCompile(`\(([^()]*)\)`)
	voidedNote = regexp.MustCompile(`(?i)jilid|\btco\b`)
	plusRun    = regexp.MustCompile(`\+{2,}`)
	tokenSplit = regexp.MustCompile(`[\s+\-/\\(),\[\]{}.:;]+`)
)

// Ref is one well-formed reference number found in free text, for example
// MBSP/15/U24-2511/0120-PKM.
type Ref struct {
	Raw     string `json:"raw"`
	Prefix  string `json:"prefix"`
	Segment string `json:"segment"`
	Series  string `json:"series"`
	Tail    string `json:"tail"`
	Suffix  string `json:"suffix,omitempty"`
}

// TailKey is the loose matching key: the numeric tail without leading zeros.
func (r Ref) TailKey() string {
	trimmed := strings.TrimLeft(r.Tail, "0")
	if trimmed == "" && r.Tail != "" {
		return "0"
	}
	return trimmed
}

// SeriesTailKey disambiguates tails that repeat across series.
func (r Ref) SeriesTailKey() string {
	if r.Series == "" || r.Tail == "" {
		return ""
	}
	return r.Series + "|" + r.TailKey()
}

type Normalizer struct {
	vocab *vocab.Vocabulary

	legacyPrefix *regexp.Regexp
	parenTag     *regexp.Regexp
	qualified    *regexp.Regexp
	hyphenated   *regexp.Regexp
	refPattern   *regexp.Regexp
}

func New(v *vocab.Vocabulary) *Normalizer {
	n := &Normalizer{vocab: v}

	var legacy []string
	for _, p := range v.LegacyPrefixes {
		legacy = append(legacy, regexp.QuoteMeta(strings.ToUpper(p)))
	}
	sort.SliceStable(legacy, func(i, j int) bool { return len(legacy[i]) > len(legacy[j]) })
	if len(legacy) > 0 {
		n.legacyPrefix = regexp.MustCompile(`(?i)^(?:` + strings.Join(legacy, "|") + `)`)
	}

	codes := v.CodesBySpecificity()
	quoted := make([]string, 0, len(codes))
	var hyphen []string
	for _, code := range codes {
		quoted = append(quoted, regexp.QuoteMeta(code))
		if strings.ContainsAny(code, "-/") {
			hyphen = append(hyphen, regexp.QuoteMeta(code))
		}
	}
	hosts := strings.Join(quoted, "|")
	n.qualified = regexp.MustCompile(`\b(` + hosts + `)\s*\([^)]*\)`)
	if len(v.QualifierTags) > 0 {
		var tags []string
		for _, tag := range v.QualifierTags {
			tags = append(tags, regexp.QuoteMeta(strings.ToUpper(tag)))
		}
		n.parenTag = regexp.MustCompile(`\(\s*(` + hosts + `)\s*\)\s*(?:` + strings.Join(tags, "|") + `)\b`)
	}
	if len(hyphen) > 0 {
		n.hyphenated = regexp.MustCompile(`\b(?:` + strings.Join(hyphen, "|") + `)\b`)
	}

	prefixes := append([]string{regexp.QuoteMeta(strings.ToUpper(v.CanonicalPrefix))}, legacy...)
	n.refPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(prefixes, "|") + `)\s*/\s*(\d{1,3})\s*/\s*([A-Z]{1,3}\d{2}\s*-\s*\d{4})\s*/\s*(\d{3,5})\b(-[A-Z0-9()+\-]*[A-Z0-9)])?`)
	return n
}

func (n *Normalizer) Vocabulary() *vocab.Vocabulary {
	return n.vocab
}

// MatchKey is the collision-safe matching form of a reference: whitespace and
// separator punctuation removed, legacy prefixes unified, lower case.
func (n *Normalizer) MatchKey(raw string) string {
	s := stripSpace(norm.NFKC.String(raw))
	s = strings.ToUpper(s)
	s = n.unifyPrefix(s)
	s = separators.Replace(s)
	return strings.ToLower(s)
}

// Display is the human-readable form. Only whitespace, legacy prefixes, voided
// volume/TCO notes and repeated '+' are touched; other notes stay verbatim.
func (n *Normalizer) Display(raw string) string {
	s := stripSpace(raw)
	s = n.unifyPrefix(s)
	s = noteGroup.ReplaceAllStringFunc(s, func(group string) string {
		if voidedNote.MatchString(group[1 : len(group)-1]) {
			return ""
		}
		return group
	})
	return plusRun.ReplaceAllString(s, "+")
}

func (n *Normalizer) unifyPrefix(s string) string {
	if n.legacyPrefix == nil {
		return s
	}
	return n.legacyPrefix.ReplaceAllLiteralString(s, strings.ToUpper(n.vocab.CanonicalPrefix))
}

// Codes returns the permit-type codes embedded in raw plus the codes implied
// by the origin sheet. Qualifier brackets such as SB(204D) or (SB)204D reduce
// to the outer code before tokenizing.
func (n *Normalizer) Codes(raw, sheet string) CodeSet {
	codes := n.scanCodes(raw)
	for _, code := range n.vocab.SheetImpliedCodes(sheet) {
		codes.Add(strings.ToUpper(code))
	}
	return codes
}

func (n *Normalizer) scanCodes(raw string) CodeSet {
	codes := CodeSet{}
	s := strings.ToUpper(norm.NFKC.String(raw))
	if n.parenTag != nil {
		s = n.parenTag.ReplaceAllString(s, "$1")
	}
	s = n.qualified.ReplaceAllString(s, "$1")
	if n.hyphenated != nil {
		s = n.hyphenated.ReplaceAllStringFunc(s, func(code string) string {
			codes.Add(code)
			return " "
		})
	}
	for _, token := range tokenSplit.Split(s, -1) {
		if n.vocab.IsCode(token) {
			codes.Add(token)
		}
	}
	return codes
}

// Parent strips the trailing -<codes> suffix: the last '-' whose following
// segment holds at least one known code. Without one the whole
// whitespace-stripped reference is the parent.
func (n *Normalizer) Parent(raw string) string {
	s := stripSpace(raw)
	for i := len(s) - 1; i > 0; i-- {
		if s[i] != '-' {
			continue
		}
		if len(n.scanCodes(s[i+1:])) > 0 {
			return s[:i]
		}
	}
	return s
}

// Refs finds every well-formed reference number in text, in order.
func (n *Normalizer) Refs(text string) []Ref {
	matches := n.refPattern.FindAllStringSubmatch(text, -1)
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Ref{
			Raw:     stripSpace(m[0]),
			Prefix:  strings.ToUpper(m[1]),
			Segment: m[2],
			Series:  strings.ToUpper(stripSpace(m[3])),
			Tail:    m[4],
			Suffix:  strings.ToUpper(strings.TrimPrefix(m[5], "-")),
		})
	}
	return refs
}

// FirstRef is the first reference in text, if any.
func (n *Normalizer) FirstRef(text string) (Ref, bool) {
	refs := n.Refs(text)
	if len(refs) == 0 {
		return Ref{}, false
	}
	return refs[0], true
}

// Label joins codes in canonical vocabulary order with '+'.
func (n *Normalizer) Label(codes CodeSet) string {
	return strings.Join(codes.Ordered(n.vocab), "+")
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
