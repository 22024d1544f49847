package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/vocab"
)

const paper = `KERTAS MESYUARAT BIL. 1/2026 OSC/PKM/01
No. Rujukan OSC : MBSP/15/U24-2511/0120-PKM
Pemohon : Tetuan Lim Ah Kow Sdn Bhd
`

func setupTestCache(t *testing.T) (*AgendaCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewAgendaCache("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create agenda cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func parsedIndex() *agenda.Index {
	return agenda.Parse(paper, ref.New(vocab.Default()))
}

func TestNewAgendaCache(t *testing.T) {
	c, _ := setupTestCache(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewAgendaCacheRejectsBadURL(t *testing.T) {
	if _, err := NewAgendaCache("not a url", time.Hour); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPutAndGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	digest := Key("v1", []byte("paper"))

	if err := c.Put(ctx, digest, parsedIndex()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	idx, err := c.Get(ctx, digest)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !idx.HasParent("mbsp15u2425110120") {
		t.Error("cached index lost its parent keys")
	}
	if idx.Stats().Blocks != 1 {
		t.Errorf("expected 1 block, got %+v", idx.Stats())
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := setupTestCache(t)
	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestEntriesExpire(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "d", parsedIndex()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Hour)

	if _, err := c.Get(ctx, "d"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expired entry, got %v", err)
	}
}

func TestGetOrParse(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	calls := 0
	parse := func() (*agenda.Index, error) {
		calls++
		return parsedIndex(), nil
	}

	if _, hit, err := c.GetOrParse(ctx, "d", parse); err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	idx, hit, err := c.GetOrParse(ctx, "d", parse)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("parse called %d times, want 1", calls)
	}
	if !idx.HasParent("mbsp15u2425110120") {
		t.Error("cached index lost its parent keys")
	}
}

func TestGetOrParsePropagatesParseError(t *testing.T) {
	c, _ := setupTestCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrParse(context.Background(), "d", func() (*agenda.Index, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestGetOrParseSurvivesRedisOutage(t *testing.T) {
	c, s := setupTestCache(t)
	s.Close()

	idx, hit, err := c.GetOrParse(context.Background(), "d", func() (*agenda.Index, error) { return parsedIndex(), nil })
	if err != nil || hit || idx == nil {
		t.Fatalf("expected a fresh parse, got idx=%v hit=%v err=%v", idx, hit, err)
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	if err := c.Put(ctx, "d", parsedIndex()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Invalidate(ctx, "d"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Get(ctx, "d"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidate, got %v", err)
	}
}

func TestKeySeparatesNamespaces(t *testing.T) {
	data := []byte("same paper")
	if Key("a", data) == Key("b", data) {
		t.Error("namespaces must not collide")
	}
	if Key("a", data) != Key("a", data) {
		t.Error("Key must be deterministic")
	}
}
