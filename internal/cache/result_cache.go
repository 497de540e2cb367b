// Package cache keeps recent provider search results in a remote key/value
// store so repeated topic queries within the TTL skip the provider entirely.
// The cache is an optimization: every failure path degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/paperwatch/internal/model"
)

// Store is the subset of the kvstore client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int, error)
	Scan(ctx context.Context, cursor, pattern string, count int) (string, []string, error)
}

const scanPageSize = 100

// ResultCache is a TTL-bounded cache of topic query results. A nil store
// produces a permanently disabled instance whose operations are safe no-ops;
// the decision is made once at construction, never flipped afterwards.
type ResultCache struct {
	store  Store
	prefix string
	ttl    time.Duration

	now func() time.Time
}

func New(store Store, prefix string, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, prefix: prefix, ttl: ttl, now: time.Now}
}

// Disabled returns a cache that never stores anything.
func Disabled() *ResultCache {
	return New(nil, "", 0)
}

// Enabled reports whether the cache has a backing store.
func (c *ResultCache) Enabled() bool {
	return c.store != nil
}

type entry struct {
	Papers   []model.PaperSummary `json:"papers"`
	CachedAt time.Time            `json:"cached_at"`
}

// Key returns the store key for a query. The query parameters are normalized
// and hashed so equivalent spellings share an entry.
func (c *ResultCache) Key(topic string, categories []string, offset, limit int) string {
	parts := []string{model.NormalizeTopic(topic)}
	for _, cat := range categories {
		parts = append(parts, strings.ToLower(strings.TrimSpace(cat)))
	}
	canonical := fmt.Sprintf("%s|%d|%d", strings.Join(parts, ","), offset, limit)
	sum := sha256.Sum256([]byte(canonical))
	return c.prefix + ":" + hex.EncodeToString(sum[:6])
}

// Get returns the cached papers for the query, or (nil, false) on a miss. A
// stored entry older than the TTL counts as a miss even if the store's own
// expiry has not fired yet, so a misconfigured store never serves stale data.
func (c *ResultCache) Get(ctx context.Context, topic string, categories []string, offset, limit int) ([]model.PaperSummary, bool) {
	if c.store == nil {
		return nil, false
	}
	key := c.Key(topic, categories, offset, limit)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("cache get %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		log.Printf("cache get %s: malformed payload: %v", key, err)
		return nil, false
	}
	if c.now().Sub(e.CachedAt) > c.ttl {
		return nil, false
	}
	return e.Papers, true
}

// Set stores the papers for the query. Writes are best-effort; a failed write
// is logged and swallowed because the next read simply misses.
func (c *ResultCache) Set(ctx context.Context, topic string, categories []string, offset, limit int, papers []model.PaperSummary) {
	if c.store == nil {
		return
	}
	key := c.Key(topic, categories, offset, limit)
	b, err := json.Marshal(entry{Papers: papers, CachedAt: c.now()})
	if err != nil {
		log.Printf("cache set %s: %v", key, err)
		return
	}
	if err := c.store.SetEx(ctx, key, string(b), c.ttl); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}

// Invalidate removes one query's entry and reports whether it existed.
func (c *ResultCache) Invalidate(ctx context.Context, topic string, categories []string, offset, limit int) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	n, err := c.store.Del(ctx, c.Key(topic, categories, offset, limit))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearAll deletes every entry under the cache prefix with a cursor scan. On
// a mid-scan failure it returns the count deleted so far alongside the error.
func (c *ResultCache) ClearAll(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	deleted := 0
	cursor := "0"
	for {
		next, keys, err := c.store.Scan(ctx, cursor, c.prefix+":*", scanPageSize)
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.store.Del(ctx, keys...)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		if next == "0" || next == "" {
			return deleted, nil
		}
		cursor = next
	}
}
