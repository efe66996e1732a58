// Package cache provides the analysis cache. Lookups are keyed by a
// fingerprint of the canonicalized request; concurrent misses on the same
// key share a single build, and entries expire by TTL both lazily on read
// and through a periodic sweep.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
	"github.com/honeybadger-technologies/finopsguard/internal/metrics"
)

const shardCount = 16

// KeyRequest holds the request fields that determine cache identity.
// Fields irrelevant to the result (request_id, timestamps) stay out so
// retries and duplicate submissions land on the same entry.
type KeyRequest struct {
	IaCType       string
	Payload       string
	Environment   string
	PolicyIDs     []string
	MonthlyBudget string
}

// Key returns the SHA-256 fingerprint of the canonicalized request.
// The payload is whitespace-trimmed and policy ids are sorted, so
// equivalent requests hash identically.
func Key(req KeyRequest) string {
	ids := append([]string(nil), req.PolicyIDs...)
	sort.Strings(ids)

	canonical, _ := json.Marshal(struct {
		IaCType       string   `json:"iac_type"`
		Payload       string   `json:"payload"`
		Environment   string   `json:"environment"`
		PolicyIDs     []string `json:"policy_ids"`
		MonthlyBudget string   `json:"monthly_budget"`
	}{
		IaCType:       req.IaCType,
		Payload:       strings.TrimSpace(req.Payload),
		Environment:   req.Environment,
		PolicyIDs:     ids,
		MonthlyBudget: req.MonthlyBudget,
	})

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// EntryInfo is a point-in-time view of one entry's metadata.
type EntryInfo struct {
	Key          string    `json:"cache_key"`
	CacheType    string    `json:"cache_type"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	HitCount     int64     `json:"hit_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Stats summarizes cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

type entry[V any] struct {
	value        V
	createdAt    time.Time
	expiresAt    time.Time
	hitCount     atomic.Int64
	lastAccessed atomic.Int64 // unix nanos
}

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
}

// Cache is a sharded TTL cache with single-flight builds.
type Cache[V any] struct {
	cacheType string
	ttl       time.Duration
	shards    [shardCount]*shard[V]
	flight    singleflight.Group
	hits      atomic.Int64
	misses    atomic.Int64
	log       *zap.Logger
	now       func() time.Time
}

// New creates a cache. cacheType labels the entries in metadata views.
func New[V any](cacheType string, ttl time.Duration, log *zap.Logger) *Cache[V] {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache[V]{
		cacheType: cacheType,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{entries: make(map[string]*entry[V])}
	}
	return c
}

// GetOrBuild returns the cached value for key, or runs build to produce
// it. Concurrent callers that miss on the same key share one build; the
// losers wait for the winner's result instead of computing their own.
// The boolean reports whether the value came from the cache. Failed
// builds are never stored.
func (c *Cache[V]) GetOrBuild(ctx context.Context, key string, build func(ctx context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.get(key); ok {
		c.hits.Add(1)
		metrics.CacheHitsTotal.Inc()
		return v, true, nil
	}
	c.misses.Add(1)
	metrics.CacheMissesTotal.Inc()

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// A peer may have stored the value between our miss and the
		// flight winning the key.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		// The in-flight build may be running under this caller's
		// context; unlink the key so later requests build fresh
		// instead of joining a doomed flight.
		c.flight.Forget(key)
		return zero, false, apperrors.Cancelled(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

func (c *Cache[V]) get(key string) (V, bool) {
	sh := c.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		sh.mu.Lock()
		if cur, still := sh.entries[key]; still && cur == e {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return zero, false
	}

	e.hitCount.Add(1)
	e.lastAccessed.Store(now.UnixNano())
	return e.value, true
}

func (c *Cache[V]) put(key string, value V) {
	now := c.now()
	e := &entry[V]{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	e.lastAccessed.Store(now.UnixNano())

	sh := c.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = e
	sh.mu.Unlock()
}

// StartSweeper evicts expired entries on a fixed interval until ctx is
// cancelled.
func (c *Cache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.sweep(); removed > 0 {
					c.log.Debug("cache sweep evicted entries",
						zap.String("cache_type", c.cacheType),
						zap.Int("removed", removed))
				}
			}
		}
	}()
}

func (c *Cache[V]) sweep() int {
	now := c.now()
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if now.After(e.expiresAt) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Stats returns entry and hit/miss counts.
func (c *Cache[V]) Stats() Stats {
	entries := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		entries += len(sh.entries)
		sh.mu.RUnlock()
	}
	return Stats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Entries returns metadata for every live entry, sorted by key.
func (c *Cache[V]) Entries() []EntryInfo {
	var infos []EntryInfo
	for _, sh := range c.shards {
		sh.mu.RLock()
		for key, e := range sh.entries {
			infos = append(infos, EntryInfo{
				Key:          key,
				CacheType:    c.cacheType,
				CreatedAt:    e.createdAt,
				ExpiresAt:    e.expiresAt,
				HitCount:     e.hitCount.Load(),
				LastAccessed: time.Unix(0, e.lastAccessed.Load()).UTC(),
			})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}
