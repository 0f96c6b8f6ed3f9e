// Package cache is the process-local response cache. Entries are keyed by
// fingerprint, expire per content category and carry tags for bulk
// invalidation.
package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/config"
	"github.com/pario-ai/tierwise/pkg/models"
)

// Tag prefixes attached by Put.
const (
	TagTenant   = "tenant:"
	TagSector   = "sector:"
	TagCategory = "category:"
)

// Metadata describes the response being stored.
type Metadata struct {
	Tier         models.Tier
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	TenantID     string
	SectorCode   string
	Category     models.ContentCategory
	Tags         []string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a size-bounded in-memory cache guarded by a single mutex.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*models.CacheEntry
	closed     bool
	ttl        config.TTLConfig
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates an empty Store.
func New(cfg config.CacheConfig, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		entries:    make(map[string]*models.CacheEntry),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "cache")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns a copy of the entry stored under key and bumps its hit counter.
// Expired entries are evicted and reported as a miss.
func (s *Store) Get(key string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return models.CacheEntry{}, false
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, key)
		s.evictions.Add(1)
		s.misses.Add(1)
		return models.CacheEntry{}, false
	}

	e.Hits++
	s.hits.Add(1)
	return clone(e), true
}

// Put stores response under key. It returns false without storing when the
// response is empty or the store is closed. Expired and, if needed, oldest
// entries are evicted first so the store stays within its bound.
func (s *Store) Put(key, response string, meta Metadata) (models.CacheEntry, bool) {
	if response == "" {
		return models.CacheEntry{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.CacheEntry{}, false
	}

	reserve := 1
	if _, exists := s.entries[key]; exists {
		reserve = 0
	}
	s.cleanupLocked(reserve)

	now := s.now()
	tenant := meta.TenantID
	if meta.Category.Shareable() {
		tenant = models.SharedTenant
	}

	tags := make([]string, 0, len(meta.Tags)+3)
	if tenant != "" {
		tags = append(tags, TagTenant+tenant)
	}
	if meta.SectorCode != "" {
		tags = append(tags, TagSector+meta.SectorCode)
	}
	tags = append(tags, TagCategory+meta.Category.String())
	tags = append(tags, meta.Tags...)

	e := &models.CacheEntry{
		Key:          key,
		Response:     response,
		Tier:         meta.Tier,
		Model:        meta.Model,
		InputTokens:  meta.InputTokens,
		OutputTokens: meta.OutputTokens,
		Cost:         meta.Cost,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl.For(meta.Category)),
		Tags:         tags,
		TenantID:     tenant,
		Category:     meta.Category,
	}
	s.entries[key] = e

	s.logger.Debug("cache put",
		zap.String("category", meta.Category.String()),
		zap.String("tenant", tenant),
		zap.Time("expires_at", e.ExpiresAt))
	return clone(e), true
}

// InvalidateByTag removes every entry carrying tag and returns the count.
func (s *Store) InvalidateByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if e.HasTag(tag) {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("cache invalidated by tag", zap.String("tag", tag), zap.Int("removed", n))
	}
	return n
}

// InvalidateByTenant removes the tenant-scoped entries of tenant. Shareable
// entries are never touched.
func (s *Store) InvalidateByTenant(tenant string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := TagTenant + tenant
	n := 0
	for k, e := range s.entries {
		if !e.Category.Shareable() && e.HasTag(tag) {
			delete(s.entries, k)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("cache invalidated for tenant", zap.String("tenant", tenant), zap.Int("removed", n))
	}
	return n
}

// Cleanup removes expired entries, then the oldest-created ones while the
// store exceeds its bound. It returns the number of entries removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(0)
}

// cleanupLocked makes room for reserve new entries. Callers hold s.mu.
func (s *Store) cleanupLocked(reserve int) int {
	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, k)
			removed++
		}
	}

	if excess := len(s.entries) + reserve - s.maxEntries; excess > 0 {
		oldest := make([]*models.CacheEntry, 0, len(s.entries))
		for _, e := range s.entries {
			oldest = append(oldest, e)
		}
		sort.Slice(oldest, func(i, j int) bool {
			if oldest[i].CreatedAt.Equal(oldest[j].CreatedAt) {
				return oldest[i].Key < oldest[j].Key
			}
			return oldest[i].CreatedAt.Before(oldest[j].CreatedAt)
		})
		for _, e := range oldest[:min(excess, len(oldest))] {
			delete(s.entries, e.Key)
			removed++
		}
	}

	if removed > 0 {
		s.evictions.Add(int64(removed))
		s.logger.Debug("cache cleanup", zap.Int("removed", removed), zap.Int("remaining", len(s.entries)))
	}
	return removed
}

// Stats returns cache performance metrics.
func (s *Store) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	by := make(map[string]int64)
	for _, e := range s.entries {
		by[e.Category.String()]++
	}
	return models.CacheStats{
		Entries:    int64(len(s.entries)),
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
		ByCategory: by,
	}
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*models.CacheEntry)
}

// Close clears the store; later Puts are ignored.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*models.CacheEntry)
	s.closed = true
	return nil
}

func clone(e *models.CacheEntry) models.CacheEntry {
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	return c
}
