package cache

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

const (
	DefaultMaxEntries = 1000
	DefaultShortTTL   = 5 * time.Minute
	DefaultTTL        = 30 * time.Minute
	DefaultLongTTL    = 6 * time.Hour

	// evictFraction of the store is dropped unconditionally when a new key hits capacity.
	evictFraction = 0.10
)

// MemoryStore is a bounded in-process TTL store. Expiry is checked lazily on
// read; capacity pressure triggers a two-phase cleanup on insert.
type MemoryStore struct {
	logger     types.Logger
	clock      types.Clock
	maxEntries int
	defaultTTL time.Duration
	data       map[string]*types.CacheEntry
	hits       uint64
	misses     uint64
	evictions  uint64
	mu         sync.Mutex
}

func NewMemoryStore(config *types.CacheConfig, clock types.Clock, logger types.Logger) *MemoryStore {
	maxEntries := DefaultMaxEntries
	defaultTTL := DefaultTTL

	if config != nil {
		if config.MaxEntries > 0 {
			maxEntries = config.MaxEntries
		}
		if config.TTL.Medium > 0 {
			defaultTTL = config.TTL.Medium
		}
	}

	return &MemoryStore{
		logger:     logger,
		clock:      clock,
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		data:       make(map[string]*types.CacheEntry, maxEntries),
	}
}

func (m *MemoryStore) Get(key string) (value interface{}, found bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Cache get failed, treating as miss",
				zap.String("key", key),
				zap.Any("panic", r))
			value, found = nil, false
		}
	}()

	return m.lookup(key)
}

// lookup counts the hit or miss while still holding the lock, so a concurrent
// Clear never sees a lookup that started before it.
func (m *MemoryStore) lookup(key string) (value interface{}, found bool) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if found {
			atomic.AddUint64(&m.hits, 1)
		} else {
			atomic.AddUint64(&m.misses, 1)
		}
	}()

	entry, exists := m.data[key]
	if !exists {
		return nil, false
	}

	if entry == nil {
		delete(m.data, key)
		m.logger.Error("Corrupt cache entry removed", zap.String("key", key), zap.Error(types.ErrCacheEntryCorrupt))
		return nil, false
	}

	if entry.Expired(now) {
		delete(m.data, key)
		return nil, false
	}

	entry.LastAccess = now
	return entry.Value, true
}

func (m *MemoryStore) Put(key string, value interface{}, ttl time.Duration) {
	if key == "" {
		m.logger.Error("Attempted to put cache entry with empty key", zap.Error(types.ErrCacheKeyEmpty))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Cache put failed, entry dropped",
				zap.String("key", key),
				zap.Any("panic", r))
		}
	}()

	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxEntries {
		m.cleanupUnsafe(now)
	}

	m.data[key] = &types.CacheEntry{
		Key:        key,
		Value:      value,
		TTL:        ttl,
		StoredAt:   now,
		LastAccess: now,
	}
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := len(m.data)
	m.data = make(map[string]*types.CacheEntry, m.maxEntries)
	atomic.StoreUint64(&m.hits, 0)
	atomic.StoreUint64(&m.misses, 0)

	m.logger.Info("Memory cache cleared", zap.Int("cleared_entries", cleared))
}

func (m *MemoryStore) Stats() types.CacheStats {
	now := m.clock.Now()

	m.mu.Lock()
	size := len(m.data)
	expired := 0
	for _, entry := range m.data {
		if entry == nil || entry.Expired(now) {
			expired++
		}
	}
	m.mu.Unlock()

	hits := atomic.LoadUint64(&m.hits)
	misses := atomic.LoadUint64(&m.misses)

	return types.CacheStats{
		Size:           size,
		Hits:           hits,
		Misses:         misses,
		HitRate:        hitRate(hits, misses),
		MaxSize:        m.maxEntries,
		ExpiredEntries: expired,
	}
}

func (m *MemoryStore) Evictions() uint64 {
	return atomic.LoadUint64(&m.evictions)
}

// cleanupUnsafe drops the least recently accessed ~10% of entries, then
// sweeps whatever is left for logically expired ones. Caller holds m.mu.
func (m *MemoryStore) cleanupUnsafe(now time.Time) {
	entries := make([]*types.CacheEntry, 0, len(m.data))
	for key, entry := range m.data {
		if entry == nil {
			delete(m.data, key)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastAccess.Equal(entries[j].LastAccess) {
			return entries[i].LastAccess.Before(entries[j].LastAccess)
		}
		return entries[i].Key < entries[j].Key
	})

	evictCount := evictionCount(len(entries))
	for _, entry := range entries[:evictCount] {
		delete(m.data, entry.Key)
	}

	expiredCount := 0
	for _, entry := range entries[evictCount:] {
		if entry.Expired(now) {
			delete(m.data, entry.Key)
			expiredCount++
		}
	}

	atomic.AddUint64(&m.evictions, uint64(evictCount+expiredCount))

	m.logger.Debug("Cache cleanup completed",
		zap.Int("evicted_oldest", evictCount),
		zap.Int("evicted_expired", expiredCount),
		zap.Int("remaining", len(m.data)))
}

func evictionCount(size int) int {
	if size == 0 {
		return 0
	}
	count := int(math.Ceil(float64(size) * evictFraction))
	if count < 1 {
		count = 1
	}
	if count > size {
		count = size
	}
	return count
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
