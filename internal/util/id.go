package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns prefix_<32 hex digits>, which is also a valid Meilisearch
// document id fragment.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
