package util

import (
	"regexp"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("run")
	if !regexp.MustCompile(`^run_[0-9a-f]{32}$`).MatchString(id) {
		t.Fatalf("NewID() = %q", id)
	}
	if NewID("run") == id {
		t.Fatal("ids must be unique")
	}
	if bare := NewID(""); len(bare) != 32 {
		t.Fatalf("NewID(\"\") = %q", bare)
	}
}
