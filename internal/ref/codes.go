package ref

import (
	"sort"

	"lampiran/api/internal/vocab"
)

// CodeSet is a set of permit-type codes.
type CodeSet map[string]struct{}

func NewCodeSet(codes ...string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, code := range codes {
		set.Add(code)
	}
	return set
}

func (s CodeSet) Add(code string) {
	if code != "" {
		s[code] = struct{}{}
	}
}

func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

func (s CodeSet) Union(other CodeSet) {
	for code := range other {
		s[code] = struct{}{}
	}
}

func (s CodeSet) Intersects(other CodeSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for code := range small {
		if large.Has(code) {
			return true
		}
	}
	return false
}

// Ordered lists the set in canonical vocabulary order; codes outside the
// vocabulary follow alphabetically.
func (s CodeSet) Ordered(v *vocab.Vocabulary) []string {
	out := s.Sorted()
	sort.SliceStable(out, func(i, j int) bool { return v.CodeRank(out[i]) < v.CodeRank(out[j]) })
	return out
}

func (s CodeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for code := range s {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
