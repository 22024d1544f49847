// Package cache keeps parsed agenda indexes in Redis so repeated runs over
// the same meeting paper skip extraction and OCR.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lampiran/api/internal/agenda"
)

const defaultTTL = 7 * 24 * time.Hour

// ErrMiss is returned by Get when no index is cached under the key.
var ErrMiss = errors.New("agenda index not cached")

// AgendaCache stores agenda indexes keyed by the SHA-256 of the agenda file.
type AgendaCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewAgendaCache connects to redisURL and verifies the connection.
func NewAgendaCache(redisURL string, ttl time.Duration) (*AgendaCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewAgendaCacheWithClient(client, ttl), nil
}

// NewAgendaCacheWithClient wraps an existing client. A non-positive ttl
// falls back to one week.
func NewAgendaCacheWithClient(client *redis.Client, ttl time.Duration) *AgendaCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AgendaCache{
		client: client,
		prefix: "agenda:",
		ttl:    ttl,
	}
}

// Key is the content address of an agenda file. The namespace separates
// indexes built under different vocabularies.
func Key(namespace string, data []byte) string {
	sum := sha256.New()
	sum.Write([]byte(namespace))
	sum.Write([]byte{0})
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil))
}

func (c *AgendaCache) key(digest string) string {
	return c.prefix + digest
}

func (c *AgendaCache) Get(ctx context.Context, digest string) (*agenda.Index, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read agenda index: %w", err)
	}

	idx := &agenda.Index{}
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, fmt.Errorf("decode agenda index: %w", err)
	}
	return idx, nil
}

func (c *AgendaCache) Put(ctx context.Context, digest string, idx *agenda.Index) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode agenda index: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save agenda index: %w", err)
	}
	return nil
}

// GetOrParse returns the cached index for digest, or calls parse and caches
// its result. Cache faults never fail the call; the index is rebuilt instead.
func (c *AgendaCache) GetOrParse(ctx context.Context, digest string, parse func() (*agenda.Index, error)) (*agenda.Index, bool, error) {
	if idx, err := c.Get(ctx, digest); err == nil {
		return idx, true, nil
	}

	idx, err := parse()
	if err != nil {
		return nil, false, err
	}
	_ = c.Put(ctx, digest, idx)
	return idx, false, nil
}

// Invalidate drops one cached index.
func (c *AgendaCache) Invalidate(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, c.key(digest)).Err(); err != nil {
		return fmt.Errorf("invalidate agenda index: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *AgendaCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *AgendaCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
