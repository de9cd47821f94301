// Package cache keeps the last good suggestion list per user in Redis so the
// API can answer with it when the recommendation pipeline is unavailable or
// degraded. Concurrent computations for the same user are collapsed with
// singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/redis"
)

const keyPrefix = "suggest:"

// Kind separates the cached lists served by different endpoints.
type Kind string

const (
	KindPersonalized Kind = "personalized"
	KindDocument     Kind = "document"
)

// Backend is the subset of the Redis client the cache needs. A miss is
// reported with an error for which pkgredis.IsNilError is true.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Entry is one cached suggestion list.
type Entry struct {
	Documents []document.Scored `json:"documents"`
	Tier      string            `json:"tier"`
	Degraded  bool              `json:"degraded"`
	StoredAt  time.Time         `json:"storedAt"`
}

// SuggestionCache is safe for concurrent use.
type SuggestionCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl.
func New(backend Backend, ttl time.Duration) *SuggestionCache {
	return &SuggestionCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "suggestion-cache"),
		now:     time.Now,
	}
}

// Get returns the cached entry for the user, if any.
func (c *SuggestionCache) Get(ctx context.Context, kind Kind, userID string) (Entry, bool) {
	key := buildKey(kind, userID)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return Entry{}, false
	}
	c.hits.Add(1)
	return e, true
}

// Set stores e for the user. Failures are logged and otherwise ignored.
func (c *SuggestionCache) Set(ctx context.Context, kind Kind, userID string, e Entry) {
	key := buildKey(kind, userID)
	if e.StoredAt.IsZero() {
		e.StoredAt = c.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Resolve runs compute, sharing one call among concurrent requests for the
// same user and kind. A successful non-degraded entry is stored. When compute
// fails or degrades and a stored entry exists, the stored entry is returned
// with stale set and a nil error.
func (c *SuggestionCache) Resolve(ctx context.Context, kind Kind, userID string, compute func(ctx context.Context) (Entry, error)) (e Entry, stale bool, err error) {
	key := buildKey(kind, userID)
	type outcome struct {
		entry Entry
		err   error
	}
	v, _, _ := c.group.Do(key, func() (any, error) {
		entry, err := compute(ctx)
		return outcome{entry: entry, err: err}, nil
	})
	res := v.(outcome)

	if res.err == nil && !res.entry.Degraded {
		c.Set(ctx, kind, userID, res.entry)
		return res.entry, false, nil
	}
	if cached, ok := c.Get(ctx, kind, userID); ok {
		c.logger.Warn("serving cached suggestions", "kind", kind, "stored_at", cached.StoredAt, "compute_error", res.err)
		return cached, true, nil
	}
	return res.entry, false, res.err
}

// Invalidate drops every cached list.
func (c *SuggestionCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *SuggestionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the user id so raw identifiers never appear in Redis.
func buildKey(kind Kind, userID string) string {
	hash := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("%s%s:%x", keyPrefix, kind, hash[:16])
}
