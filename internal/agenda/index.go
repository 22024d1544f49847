package agenda

import "encoding/json"

// Index is the lookup structure the matcher consults. Exempt blocks are kept
// in Blocks for diagnostics but contribute to none of the key sets.
type Index struct {
	blocks []Block

	tails       map[string]struct{}
	seriesTails map[string]struct{}
	parents     map[string]struct{}
	tailSeries  map[string]map[string]struct{}
	active      []Block
}

func NewIndex(blocks []Block) *Index {
	ix := &Index{
		blocks:      blocks,
		tails:       map[string]struct{}{},
		seriesTails: map[string]struct{}{},
		parents:     map[string]struct{}{},
		tailSeries:  map[string]map[string]struct{}{},
	}
	for _, b := range blocks {
		if b.Exempt {
			continue
		}
		ix.active = append(ix.active, b)
		for _, r := range b.Refs {
			tail := r.TailKey()
			if tail == "" {
				continue
			}
			ix.tails[tail] = struct{}{}
			if st := r.SeriesTailKey(); st != "" {
				ix.seriesTails[st] = struct{}{}
			}
			if ix.tailSeries[tail] == nil {
				ix.tailSeries[tail] = map[string]struct{}{}
			}
			ix.tailSeries[tail][r.Series] = struct{}{}
		}
		for _, key := range b.ParentKeys {
			ix.parents[key] = struct{}{}
		}
	}
	return ix
}

// Blocks returns every block, exempt ones included, in document order.
func (ix *Index) Blocks() []Block { return ix.blocks }

// Active returns the non-exempt blocks.
func (ix *Index) Active() []Block { return ix.active }

func (ix *Index) HasParent(key string) bool {
	_, ok := ix.parents[key]
	return key != "" && ok
}

func (ix *Index) HasTail(tail string) bool {
	_, ok := ix.tails[tail]
	return tail != "" && ok
}

func (ix *Index) HasSeriesTail(key string) bool {
	_, ok := ix.seriesTails[key]
	return key != "" && ok
}

// TailAmbiguous reports whether tail occurs under more than one series.
func (ix *Index) TailAmbiguous(tail string) bool {
	return len(ix.tailSeries[tail]) > 1
}

// Stats summarizes the index for logging.
type Stats struct {
	Blocks int `json:"blocks"`
	Exempt int `json:"exempt"`
	Empty  int `json:"empty"`
	Tails  int `json:"tails"`
}

func (ix *Index) Stats() Stats {
	s := Stats{Blocks: len(ix.blocks), Tails: len(ix.tails)}
	for _, b := range ix.blocks {
		if b.Exempt {
			s.Exempt++
		}
		if b.Empty() {
			s.Empty++
		}
	}
	return s
}

type snapshot struct {
	Blocks []Block `json:"blocks"`
}

// MarshalJSON encodes the blocks only; the key sets are rebuilt on decode.
func (ix *Index) MarshalJSON() ([]byte, error) {
	blocks := ix.blocks
	if blocks == nil {
		blocks = []Block{}
	}
	return json.Marshal(snapshot{Blocks: blocks})
}

func (ix *Index) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*ix = *NewIndex(s.Blocks)
	return nil
}
