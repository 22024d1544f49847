package store

import (
	"encoding/json"
	"time"
)

// Run is one classification run: its inputs, windows and summary counts.
type Run struct {
	ID            string
	CreatedBy     string
	CreatedAt     time.Time
	KMStart       time.Time
	KMEnd         time.Time
	UTStart       time.Time
	UTEnd         time.Time
	ReviewEnabled bool
	AgendaName    string
	AgendaDigest  string
	Sources       []string
	Stats         json.RawMessage
	Notes         string
	ArchiveCommit string
	Total         int
}

// CategoryRow is one persisted Lampiran G row.
type CategoryRow struct {
	RunID    string `json:"runId"`
	Category int    `json:"category"`
	Sequence int    `json:"bil"`
	Tindakan string `json:"tindakan"`
	Jenis    string `json:"jenis"`
	FailNo   string `json:"failNo"`
	Pemohon  string `json:"pemohon"`
	Mukim    string `json:"mukim"`
	Lot      string `json:"lot"`
	Perkara  string `json:"perkara"`
	Daerah   string `json:"daerah"`
	Deadline string `json:"deadline,omitempty"`
}
