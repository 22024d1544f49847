// Package agenda parses the meeting agenda document into an index of the
// applications already tabled, so the report can leave them out.
package agenda

import (
	"regexp"
	"strings"

	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
)

var (
	blockHeader = regexp.MustCompile(`(?i)KERTAS\s+MESYUARAT\s+BIL\.[^\n\r]+`)
	headerCode  = regexp.MustCompile(`OSC/([^/]+)/`)
	oscLabel    = regexp.MustCompile(`(?i)No\.?\s*Rujukan\s*OSC\s*[:\t ]+\s*([^\n\r]+)`)
	applicantAt = regexp.MustCompile(`(?i)\b(?:Pemohon|Tetuan)\b[\s:]*(.*)$`)
	lotAt       = regexp.MustCompile(`(?i)\b(?:Lot|PT)\b(.*)$`)
	addressCut  = regexp.MustCompile(`(?i)\b(?:Mukim|Daerah|Bandar)\b`)
)

// Block is one meeting-paper item of the agenda.
type Block struct {
	Header       string    `json:"header"`
	Code         string    `json:"code,omitempty"`
	Exempt       bool      `json:"exempt"`
	Refs         []ref.Ref `json:"refs,omitempty"`
	ParentKeys   []string  `json:"parentKeys,omitempty"`
	Applicant    string    `json:"applicant,omitempty"`
	ApplicantKey string    `json:"applicantKey,omitempty"`
	Lot          string    `json:"lot,omitempty"`
	LotTokens    []string  `json:"lotTokens,omitempty"`
}

// Empty reports whether nothing usable was extracted from the block.
func (b Block) Empty() bool {
	return len(b.Refs) == 0 && len(b.ParentKeys) == 0 && b.ApplicantKey == "" && len(b.LotTokens) == 0
}

// Parse splits text on meeting-paper headers and indexes every block. Text
// before the first header is ignored. Malformed blocks are kept as empty
// blocks.
func Parse(text string, norm *ref.Normalizer) *Index {
	return NewIndex(Blocks(text, norm))
}

// Blocks returns the agenda blocks of text in document order.
func Blocks(text string, norm *ref.Normalizer) []Block {
	headers := blockHeader.FindAllStringIndex(text, -1)
	blocks := make([]Block, 0, len(headers))
	for i, loc := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		head := strings.TrimSpace(text[loc[0]:loc[1]])
		blocks = append(blocks, parseBlock(head, text[loc[1]:end], norm))
	}
	return blocks
}

func parseBlock(head, body string, norm *ref.Normalizer) Block {
	exemptCode := strings.ToUpper(norm.Vocabulary().ExemptCode)
	b := Block{Header: head}
	if m := headerCode.FindStringSubmatch(strings.ToUpper(head)); m != nil {
		b.Code = strings.TrimSpace(m[1])
	}
	b.Exempt = b.Code != "" && b.Code == exemptCode

	b.Refs = norm.Refs(body)
	seen := map[string]struct{}{}
	addParent := func(raw string) {
		key := norm.MatchKey(norm.Parent(raw))
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		b.ParentKeys = append(b.ParentKeys, key)
	}
	for _, r := range b.Refs {
		addParent(r.Raw)
	}
	if len(b.Refs) == 0 {
		// A mistyped reference still carries a usable parent key.
		if m := oscLabel.FindStringSubmatch(body); m != nil {
			raw := strings.Trim(m[1], " :\t")
			if !permit.Blankish(raw, norm.Vocabulary()) {
				addParent(raw)
			}
		}
	}

	lines := strings.Split(body, "\n")
	b.Applicant = applicantLine(lines)
	b.ApplicantKey = permit.ApplicantKey(b.Applicant)
	b.Lot = lotLine(lines)
	b.LotTokens = permit.LotTokens(b.Lot)
	return b
}

// applicantLine reads the name after the first Pemohon/Tetuan label, or the
// next non-empty line when the label stands alone.
func applicantLine(lines []string) string {
	for i, line := range lines {
		m := applicantAt.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		if name := strings.Trim(m[1], " :\t"); name != "" {
			return name
		}
		for _, next := range lines[i+1:] {
			if name := strings.TrimSpace(next); name != "" {
				return name
			}
		}
		return ""
	}
	return ""
}

func lotLine(lines []string) string {
	for _, line := range lines {
		m := lotAt.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		lot := m[1]
		if loc := addressCut.FindStringIndex(lot); loc != nil {
			lot = lot[:loc[0]]
		}
		return strings.Trim(lot, " ,.;:\t")
	}
	return ""
}
