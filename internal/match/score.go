package match

import (
	"strings"

	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
)

// Confidence is the fuzzy-match verdict. Only ConfidenceHigh suppresses.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Strength grades one kind of evidence.
type Strength int

const (
	StrengthNone Strength = iota
	StrengthWeak
	StrengthStrong
)

// minCompactOverlap is the shortest compacted applicant name accepted as a
// substring match.
const minCompactOverlap = 8

// Evidence is what one side of a fuzzy comparison knows about an application.
type Evidence struct {
	Applicant string
	LotTokens []string
	Codes     ref.CodeSet
}

// Score compares an application record against an agenda block. The block's
// declared codes, when present, must intersect the record's codes.
func Score(record, block Evidence) Confidence {
	if len(block.Codes) > 0 && !record.Codes.Intersects(block.Codes) {
		return ConfidenceNone
	}
	applicant := ApplicantStrength(record.Applicant, block.Applicant)
	lot := LotStrength(record.LotTokens, block.LotTokens)
	switch {
	case applicant == StrengthNone || lot == StrengthNone:
		return ConfidenceNone
	case applicant == StrengthStrong && lot == StrengthStrong:
		return ConfidenceHigh
	default:
		return ConfidenceLow
	}
}

// ApplicantStrength is strong on equal core keys, on two or more shared core
// tokens, or when one compacted core name of at least eight characters
// contains the other. A single shared token is weak.
func ApplicantStrength(a, b string) Strength {
	ta, tb := permit.ApplicantTokens(a), permit.ApplicantTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return StrengthNone
	}
	if strings.Join(ta, " ") == strings.Join(tb, " ") {
		return StrengthStrong
	}
	shared := overlap(ta, tb)
	if shared >= 2 {
		return StrengthStrong
	}
	ca, cb := strings.Join(ta, ""), strings.Join(tb, "")
	if len(cb) < len(ca) {
		ca, cb = cb, ca
	}
	if len(ca) >= minCompactOverlap && strings.Contains(cb, ca) {
		return StrengthStrong
	}
	if shared == 1 {
		return StrengthWeak
	}
	return StrengthNone
}

// LotStrength needs a shared lot token. When both sides list two or more lots
// a single shared token is only weak evidence.
func LotStrength(a, b []string) Strength {
	shared := overlap(a, b)
	switch {
	case shared == 0:
		return StrengthNone
	case len(a) >= 2 && len(b) >= 2 && shared < 2:
		return StrengthWeak
	default:
		return StrengthStrong
	}
}

func overlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	n := 0
	for _, tok := range b {
		if _, ok := set[tok]; ok {
			n++
			delete(set, tok)
		}
	}
	return n
}
