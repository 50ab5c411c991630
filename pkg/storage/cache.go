package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/vjranagit/tsengine/pkg/types"
)

// SeriesCache implements an LRU cache for loaded series. Every Invalidate
// bumps a per-key generation so a read that started before a write can tell
// its result is stale.
type SeriesCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
	gens     map[string]uint64
}

// cacheEntry represents a cached series
type cacheEntry struct {
	key       string
	series    *types.Series
	timestamp time.Time
	element   *list.Element
}

// NewSeriesCache creates a new series cache
func NewSeriesCache(capacity int, ttl time.Duration) *SeriesCache {
	return &SeriesCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
		gens:     make(map[string]uint64),
	}
}

// Get retrieves a copy of a cached series
func (sc *SeriesCache) Get(datasetID, id string) (*types.Series, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := cacheKey(datasetID, id)
	entry, exists := sc.cache[key]
	if !exists {
		return nil, false
	}

	if time.Since(entry.timestamp) > sc.ttl {
		sc.removeLocked(key)
		return nil, false
	}

	sc.lru.MoveToFront(entry.element)
	return cloneSeries(entry.series), true
}

// Put stores a copy of a series in the cache
func (sc *SeriesCache) Put(datasetID string, series *types.Series) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.putLocked(cacheKey(datasetID, series.ID), series)
}

// Generation returns the number of times a series has been invalidated
func (sc *SeriesCache) Generation(datasetID, id string) uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.gens[cacheKey(datasetID, id)]
}

// PutIfCurrent stores a copy of series only if it has not been invalidated
// since gen was read. It reports whether the series was stored.
func (sc *SeriesCache) PutIfCurrent(datasetID string, series *types.Series, gen uint64) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := cacheKey(datasetID, series.ID)
	if sc.gens[key] != gen {
		return false
	}
	return sc.putLocked(key, series)
}

// putLocked stores a copy of series under key (must hold lock)
func (sc *SeriesCache) putLocked(key string, series *types.Series) bool {
	if sc.capacity <= 0 {
		return false
	}

	if entry, exists := sc.cache[key]; exists {
		entry.series = cloneSeries(series)
		entry.timestamp = time.Now()
		sc.lru.MoveToFront(entry.element)
		return true
	}

	entry := &cacheEntry{
		key:       key,
		series:    cloneSeries(series),
		timestamp: time.Now(),
	}
	entry.element = sc.lru.PushFront(entry)
	sc.cache[key] = entry

	if sc.lru.Len() > sc.capacity {
		if oldest := sc.lru.Back(); oldest != nil {
			sc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
	return true
}

// Invalidate drops one series and returns its new generation
func (sc *SeriesCache) Invalidate(datasetID, id string) uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	key := cacheKey(datasetID, id)
	sc.removeLocked(key)
	sc.gens[key]++
	return sc.gens[key]
}

// removeLocked removes an entry from the cache (must hold lock)
func (sc *SeriesCache) removeLocked(key string) {
	if entry, exists := sc.cache[key]; exists {
		sc.lru.Remove(entry.element)
		delete(sc.cache, key)
	}
}

// Clear clears all cache entries. Generations are kept so reads in flight
// still see their entries as stale.
func (sc *SeriesCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.cache = make(map[string]*cacheEntry)
	sc.lru = list.New()
}

// Stats returns cache statistics
func (sc *SeriesCache) Stats() CacheStats {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	expired := 0
	for _, entry := range sc.cache {
		if time.Since(entry.timestamp) > sc.ttl {
			expired++
		}
	}

	return CacheStats{
		Size:     len(sc.cache),
		Capacity: sc.capacity,
		Expired:  expired,
	}
}

// CacheStats contains cache statistics. Hits and Misses are only counted by
// CachedStorage.
type CacheStats struct {
	Size     int
	Capacity int
	Expired  int
	Hits     uint64
	Misses   uint64
}

// HitRatio returns hits over lookups in [0, 1]; 0 before the first lookup
func (st CacheStats) HitRatio() float64 {
	total := st.Hits + st.Misses
	if total == 0 {
		return 0
	}
	return float64(st.Hits) / float64(total)
}

func cacheKey(datasetID, id string) string {
	return datasetID + "/" + id
}

// cloneSeries copies the sample slice and properties so callers may sort or
// append without touching the cached value
func cloneSeries(series *types.Series) *types.Series {
	out := *series
	out.Samples = append([]types.Sample(nil), series.Samples...)
	out.Properties = append(types.Properties(nil), series.Properties...)
	return &out
}

// CachedStorage wraps a storage with a series cache
type CachedStorage struct {
	storage Storage
	cache   *SeriesCache
	hits    uint64
	misses  uint64
	mu      sync.RWMutex
}

// NewCachedStorage creates a cached storage wrapper
func NewCachedStorage(storage Storage, cacheCapacity int, cacheTTL time.Duration) *CachedStorage {
	return &CachedStorage{
		storage: storage,
		cache:   NewSeriesCache(cacheCapacity, cacheTTL),
	}
}

// SaveSeries passes through and refreshes the cached copy. The generation is
// bumped after the write so reads that saw the old value cannot cache it.
func (cs *CachedStorage) SaveSeries(ctx context.Context, datasetID string, series *types.Series) error {
	if err := cs.storage.SaveSeries(ctx, datasetID, series); err != nil {
		if series.ID != "" {
			cs.cache.Invalidate(datasetID, series.ID)
		}
		return err
	}
	gen := cs.cache.Invalidate(datasetID, series.ID)
	cs.cache.PutIfCurrent(datasetID, series, gen)
	return nil
}

// GetSeries checks the cache before reading storage
func (cs *CachedStorage) GetSeries(ctx context.Context, datasetID, id string) (*types.Series, error) {
	if series, ok := cs.cache.Get(datasetID, id); ok {
		cs.mu.Lock()
		cs.hits++
		cs.mu.Unlock()
		return series, nil
	}

	cs.mu.Lock()
	cs.misses++
	cs.mu.Unlock()

	gen := cs.cache.Generation(datasetID, id)
	series, err := cs.storage.GetSeries(ctx, datasetID, id)
	if err != nil {
		return nil, err
	}
	cs.cache.PutIfCurrent(datasetID, series, gen)
	return series, nil
}

// DeleteSeries passes through and drops the cached copy
func (cs *CachedStorage) DeleteSeries(ctx context.Context, datasetID, id string) error {
	defer cs.cache.Invalidate(datasetID, id)
	return cs.storage.DeleteSeries(ctx, datasetID, id)
}

// ListSeries passes through to underlying storage
func (cs *CachedStorage) ListSeries(ctx context.Context, datasetID string, selectors map[string]string) ([]SeriesInfo, error) {
	return cs.storage.ListSeries(ctx, datasetID, selectors)
}

// SaveProvenance passes through to underlying storage
func (cs *CachedStorage) SaveProvenance(ctx context.Context, datasetID, seriesID string, links []Link) error {
	return cs.storage.SaveProvenance(ctx, datasetID, seriesID, links)
}

// GetProvenance passes through to underlying storage
func (cs *CachedStorage) GetProvenance(ctx context.Context, datasetID, seriesID string) ([]Link, error) {
	return cs.storage.GetProvenance(ctx, datasetID, seriesID)
}

// Close closes the underlying storage
func (cs *CachedStorage) Close() error {
	cs.cache.Clear()
	return cs.storage.Close()
}

// SeriesCount passes through to underlying storage
func (cs *CachedStorage) SeriesCount() int {
	return cs.storage.SeriesCount()
}

// CacheStats returns cache statistics including lookup counters
func (cs *CachedStorage) CacheStats() CacheStats {
	stats := cs.cache.Stats()

	cs.mu.RLock()
	defer cs.mu.RUnlock()
	stats.Hits = cs.hits
	stats.Misses = cs.misses
	return stats
}
