// Package cache holds validated reports so repeated lookups inside the TTL
// window never re-run a cross-validation. The in-memory tier is LRU-bounded;
// an optional external byte cache adds a shared tier across processes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/propsignal/crosscheck/internal/domain"
)

// ByteCache is the external key-value collaborator. Implementations are
// best-effort: a miss and an unavailable backend look the same.
type ByteCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type entry struct {
	report     *domain.CrossValidationReport
	expiresAt  time.Time
	lastAccess time.Time
}

// ReportCache is the orchestrator's report store: TTL per entry, LRU
// eviction past maxEntries, optional write-through to a ByteCache.
type ReportCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int
	external   ByteCache

	hits      int64
	misses    int64
	evictions int64
}

// CacheStats is a point-in-time snapshot for health and metrics surfaces.
type CacheStats struct {
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Evictions int64   `json:"evictions"`
}

// NewReportCache builds a cache with the given entry TTL and size bound.
// external may be nil for a purely in-process cache.
func NewReportCache(ttl time.Duration, maxEntries int, external ByteCache) *ReportCache {
	return &ReportCache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		external:   external,
	}
}

// Key derives the deterministic cache key for one validation call. Source
// order does not matter; the set does.
func Key(entityKind string, entityID int64, sources []domain.DataSource) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	sort.Strings(names)
	return fmt.Sprintf("%s_%d_%s", entityKind, entityID, strings.Join(names, "_"))
}

// Get returns the cached report if present and fresh, consulting the
// external tier on a local miss.
func (c *ReportCache) Get(key string) (*domain.CrossValidationReport, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if time.Now().Before(e.expiresAt) {
			e.lastAccess = time.Now()
			c.hits++
			c.mu.Unlock()
			return e.report, true
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.external != nil {
		if raw, ok := c.external.Get(key); ok {
			var report domain.CrossValidationReport
			if err := json.Unmarshal(raw, &report); err == nil {
				c.storeLocal(key, &report)
				c.mu.Lock()
				c.hits++
				c.mu.Unlock()
				return &report, true
			}
			log.Warn().Str("key", key).Msg("discarding undecodable external cache entry")
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Set stores the report locally and writes through to the external tier.
func (c *ReportCache) Set(key string, report *domain.CrossValidationReport) {
	c.storeLocal(key, report)

	if c.external != nil {
		if raw, err := json.Marshal(report); err == nil {
			c.external.Set(key, raw, c.ttl)
		}
	}
}

func (c *ReportCache) storeLocal(key string, report *domain.CrossValidationReport) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &entry{
		report:     report,
		expiresAt:  now.Add(c.ttl),
		lastAccess: now,
	}
}

// evictOldest drops the least recently used entry. Linear scan; the bound is
// small enough that a heap is not worth the bookkeeping. Caller holds mu.
func (c *ReportCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccess.Before(oldest) {
			oldestKey = k
			oldest = e.lastAccess
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// CleanExpired removes entries past their TTL and reports how many went.
func (c *ReportCache) CleanExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry. Counters are preserved.
func (c *ReportCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats snapshots the cache counters.
func (c *ReportCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Entries:   len(c.entries),
		MaxSize:   c.maxEntries,
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   hitRate,
		Evictions: c.evictions,
	}
}

// StartCleanupWorker sweeps expired entries until the context is cancelled.
func (c *ReportCache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanExpired(); removed > 0 {
					log.Debug().Int("removed", removed).Msg("cache cleanup sweep")
				}
			}
		}
	}()
}

// redisCache adapts a redis client to the ByteCache interface. Operations
// carry short timeouts so a slow backend cannot stall a validation call.
type redisCache struct {
	cl *redis.Client
}

// NewRedis connects a write-through tier at addr.
func NewRedis(addr string) ByteCache {
	return NewRedisWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

// NewRedisWithClient wraps an existing client, which keeps the adapter
// testable against a mock.
func NewRedisWithClient(cl *redis.Client) ByteCache {
	return &redisCache{cl: cl}
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	b, err := r.cl.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.cl.Set(ctx, key, val, ttl).Err()
}
