// Package cache keeps recent enrichment records so repeated lookups of the
// same identifier do not spend provider quota.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"zahori/internal/domain"
	"zahori/pkg/platform/sentinel"
)

// Store is the cache contract. Find returns sentinel.ErrNotFound on a miss.
type Store interface {
	Find(ctx context.Context, key string) (*domain.EnrichmentRecord, error)
	Save(ctx context.Context, key string, record domain.EnrichmentRecord) error
}

// Key builds the cache key for a lookup. credentialed lists the providers the
// request could reach with a key, so a keyless lookup never serves a keyed
// record or the reverse. Secrets never appear in the key.
func Key(id domain.Identifier, credentialed []string) string {
	names := append([]string(nil), credentialed...)
	sort.Strings(names)
	return string(id.Kind) + ":" + strings.ToLower(id.Value) + ":" + strings.Join(names, ",")
}

type entry struct {
	record    domain.EnrichmentRecord
	expiresAt time.Time
}

// InMemoryCache is a TTL map guarded by a RWMutex. Expired entries are
// dropped lazily on read and during Save.
type InMemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
	maxSize int
}

type Option func(*InMemoryCache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

// WithMaxEntries bounds the cache; the oldest entries are evicted first.
func WithMaxEntries(n int) Option {
	return func(c *InMemoryCache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func NewInMemoryCache(ttl time.Duration, opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Find(_ context.Context, key string) (*domain.EnrichmentRecord, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		// A Save may have refreshed the key since the read lock was released.
		if cur, ok := c.entries[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	rec := cloneRecord(e.record)
	return &rec, nil
}

func (c *InMemoryCache) Save(_ context.Context, key string, record domain.EnrichmentRecord) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}
	c.entries[key] = entry{record: cloneRecord(record), expiresAt: now.Add(c.ttl)}
	return nil
}

// evictLocked drops expired entries and, if still full, the entry closest to
// expiry.
func (c *InMemoryCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxSize && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len reports the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cloneRecord copies the mutable parts of a record so callers cannot mutate
// cached state.
func cloneRecord(r domain.EnrichmentRecord) domain.EnrichmentRecord {
	out := r
	out.Attributes = make(domain.Attributes, len(r.Attributes))
	for k, v := range r.Attributes {
		out.Attributes[k] = v
	}
	out.ProposedNodes = make([]domain.ProposedNode, len(r.ProposedNodes))
	for i, n := range r.ProposedNodes {
		n.Data = domain.CloneData(n.Data)
		out.ProposedNodes[i] = n
	}
	out.ProposedEdges = append([]domain.ProposedEdge{}, r.ProposedEdges...)
	out.Providers = append([]domain.ProviderOutcome{}, r.Providers...)
	return out
}
