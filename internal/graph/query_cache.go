package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/costlens/internal/logging"
)

// QueryCacheConfig holds cache configuration
type QueryCacheConfig struct {
	MaxMemoryMB int64
	TTL         time.Duration
	Enabled     bool
}

type cacheEntry struct {
	result    *QueryResult
	size      int64
	expiresAt time.Time
}

// QueryCacheStats represents cache statistics
type QueryCacheStats struct {
	MaxMemory  int64
	UsedMemory int64
	Items      int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Expired    uint64
	HitRate    float64
}

// QueryCache is an LRU cache of read query results bounded by TTL and estimated memory
type QueryCache struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, *cacheEntry]
	maxMemory  int64
	usedMemory int64
	ttl        time.Duration
	now        func() time.Time
	logger     *logging.Logger

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

// NewQueryCache creates a query cache
func NewQueryCache(config QueryCacheConfig, logger *logging.Logger) (*QueryCache, error) {
	if config.MaxMemoryMB <= 0 {
		return nil, fmt.Errorf("MaxMemoryMB must be positive, got %d", config.MaxMemoryMB)
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("TTL must be positive, got %v", config.TTL)
	}

	qc := &QueryCache{
		maxMemory: config.MaxMemoryMB * 1024 * 1024,
		ttl:       config.TTL,
		now:       time.Now,
		logger:    logger,
	}

	// Capacity is bounded by memory, the entry count limit only sizes the LRU
	cache, err := lru.NewWithEvict[string, *cacheEntry](10000, func(_ string, entry *cacheEntry) {
		qc.usedMemory -= entry.size
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	qc.lru = cache

	logger.Debug("Query cache initialized: maxMemory=%dMB, TTL=%v", config.MaxMemoryMB, config.TTL)
	return qc, nil
}

// Get returns a cached result. Expired entries are removed and count as misses.
func (qc *QueryCache) Get(key string) (*QueryResult, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.lru.Get(key)
	if !ok {
		qc.misses++
		return nil, false
	}
	if qc.now().After(entry.expiresAt) {
		qc.lru.Remove(key)
		qc.expired++
		qc.misses++
		return nil, false
	}

	qc.hits++
	return entry.result, true
}

// Put stores a result, evicting least recently used entries to make room.
// Results larger than the whole cache are not stored.
func (qc *QueryCache) Put(key string, result *QueryResult) {
	size := estimateResultSize(result)

	qc.mu.Lock()
	defer qc.mu.Unlock()

	if size > qc.maxMemory {
		qc.logger.Debug("Query cache skip: key=%s size=%dKB exceeds cache", shortKey(key), size/1024)
		return
	}

	qc.lru.Remove(key)
	for qc.usedMemory+size > qc.maxMemory && qc.lru.Len() > 0 {
		qc.lru.RemoveOldest()
		qc.evictions++
	}

	qc.lru.Add(key, &cacheEntry{
		result:    result,
		size:      size,
		expiresAt: qc.now().Add(qc.ttl),
	})
	qc.usedMemory += size
}

// Invalidate removes a single entry
func (qc *QueryCache) Invalidate(key string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.lru.Remove(key)
}

// Clear removes all entries
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.lru.Purge()
	qc.usedMemory = 0
}

// Stats returns cache statistics
func (qc *QueryCache) Stats() QueryCacheStats {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	stats := QueryCacheStats{
		MaxMemory:  qc.maxMemory,
		UsedMemory: qc.usedMemory,
		Items:      qc.lru.Len(),
		Hits:       qc.hits,
		Misses:     qc.misses,
		Evictions:  qc.evictions,
		Expired:    qc.expired,
	}
	if total := qc.hits + qc.misses; total > 0 {
		stats.HitRate = float64(qc.hits) / float64(total)
	}
	return stats
}

// MakeQueryKey hashes the query text and its parameters in key order
func MakeQueryKey(query GraphQuery) string {
	h := sha256.New()
	h.Write([]byte(query.Query))

	keys := make([]string, 0, len(query.Parameters))
	for k := range query.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		paramBytes, _ := json.Marshal(query.Parameters[k])
		h.Write(paramBytes)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// estimateResultSize approximates memory use from the JSON size of the rows
func estimateResultSize(result *QueryResult) int64 {
	if result == nil {
		return 0
	}

	size := int64(200 + len(result.Columns)*50)
	for _, row := range result.Rows {
		if rowBytes, err := json.Marshal(row); err == nil {
			size += int64(len(rowBytes))
		} else {
			size += int64(len(row) * 100)
		}
	}
	return size
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
