package blob

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		in   string
		want string
	}{
		{"plain", KindSheet, "SPU.xlsx", "runs/run_1/sheets/SPU.xlsx"},
		{"traversal", KindAgenda, "../../etc/passwd", "runs/run_1/agenda/passwd"},
		{"windows path", KindAgenda, `C:\Users\osc\mesyuarat.docx`, "runs/run_1/agenda/mesyuarat.docx"},
		{"empty", KindExport, "", "runs/run_1/exports/unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectKey("run_1", tt.kind, tt.in); got != tt.want {
				t.Errorf("ObjectKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if !strings.HasPrefix(ObjectKey("run_1", KindSheet, "a"), RunPrefix("run_1")) {
		t.Error("keys must live under the run prefix")
	}
}

// TestMinioStoreRoundTrip needs a reachable server, e.g. the docker-compose
// minio service.
func TestMinioStoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("LAMPIRAN_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("LAMPIRAN_TEST_MINIO_ENDPOINT is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewMinioStore(ctx, Options{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("LAMPIRAN_TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("LAMPIRAN_TEST_MINIO_SECRET_KEY"),
		Bucket:    "lampiran-test",
	})
	if err != nil {
		t.Fatalf("NewMinioStore: %v", err)
	}

	key := ObjectKey("run_test", KindExport, "lampiran.json")
	if err := s.Put(ctx, key, []byte(`{"ok":true}`), "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := s.Get(ctx, key)
	if err != nil || string(data) != `{"ok":true}` {
		t.Fatalf("Get = %q, %v", data, err)
	}
	objects, err := s.List(ctx, RunPrefix("run_test"))
	if err != nil || len(objects) == 0 {
		t.Fatalf("List = %v, %v", objects, err)
	}
	if _, err := s.Get(ctx, ObjectKey("run_test", KindExport, "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
