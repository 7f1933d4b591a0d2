package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moolen/costlens/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, memoryMB int64, ttl time.Duration) *QueryCache {
	t.Helper()
	cache, err := NewQueryCache(QueryCacheConfig{MaxMemoryMB: memoryMB, TTL: ttl, Enabled: true}, logging.GetLogger("graph.cache"))
	require.NoError(t, err)
	return cache
}

func TestNewQueryCacheValidation(t *testing.T) {
	logger := logging.GetLogger("graph.cache")

	_, err := NewQueryCache(QueryCacheConfig{MaxMemoryMB: 0, TTL: time.Minute}, logger)
	assert.ErrorContains(t, err, "MaxMemoryMB must be positive")

	_, err = NewQueryCache(QueryCacheConfig{MaxMemoryMB: 1, TTL: 0}, logger)
	assert.ErrorContains(t, err, "TTL must be positive")
}

func TestQueryCacheGetPut(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	result := &QueryResult{Columns: []string{"id"}, Rows: [][]interface{}{{"V1"}}}

	_, ok := cache.Get("k1")
	assert.False(t, ok)

	cache.Put("k1", result)
	got, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Same(t, result, got)

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, 1, stats.Items)
	assert.Positive(t, stats.UsedMemory)
}

func TestQueryCacheExpiry(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Put("k1", &QueryResult{})
	now = now.Add(2 * time.Minute)

	_, ok := cache.Get("k1")
	assert.False(t, ok)
	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Expired)
	assert.Equal(t, 0, stats.Items)
	assert.Zero(t, stats.UsedMemory)
}

func TestQueryCacheEvictsOldestUnderMemoryPressure(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	big := func() *QueryResult {
		return &QueryResult{Rows: [][]interface{}{{strings.Repeat("x", 400*1024)}}}
	}

	cache.Put("a", big())
	cache.Put("b", big())
	cache.Put("c", big())

	_, okA := cache.Get("a")
	_, okC := cache.Get("c")
	assert.False(t, okA)
	assert.True(t, okC)
	assert.LessOrEqual(t, cache.Stats().UsedMemory, int64(1024*1024))
	assert.Equal(t, uint64(1), cache.Stats().Evictions)
}

func TestQueryCacheSkipsOversizedResults(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	cache.Put("huge", &QueryResult{Rows: [][]interface{}{{strings.Repeat("x", 2*1024*1024)}}})

	_, ok := cache.Get("huge")
	assert.False(t, ok)
}

func TestQueryCacheInvalidateAndClear(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	cache.Put("a", &QueryResult{})
	cache.Put("b", &QueryResult{})

	cache.Invalidate("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Items)
	assert.Zero(t, cache.Stats().UsedMemory)
}

func TestMakeQueryKey(t *testing.T) {
	base := GraphQuery{Query: "MATCH (v:Variance {id: $id}) RETURN v", Parameters: map[string]interface{}{"id": "V1", "depth": 3}}
	reordered := GraphQuery{Query: base.Query, Parameters: map[string]interface{}{"depth": 3, "id": "V1"}}
	other := GraphQuery{Query: base.Query, Parameters: map[string]interface{}{"id": "V2", "depth": 3}}

	assert.Equal(t, MakeQueryKey(base), MakeQueryKey(reordered))
	assert.NotEqual(t, MakeQueryKey(base), MakeQueryKey(other))
	assert.Len(t, MakeQueryKey(base), 64)
}

func TestIsWriteQuery(t *testing.T) {
	tests := []struct {
		query string
		write bool
	}{
		{"MATCH (v:Variance {id: $id}) RETURN v", false},
		{"MATCH (n) RETURN labels(n)[0] AS type, count(n) AS count", false},
		{"MERGE (n:Product {code: $key}) SET n.name = $p_name", true},
		{"match (a) detach delete a", true},
		{"CREATE INDEX FOR (n:Product) ON (n.code)", true},
		{"MATCH (v:Variance) WHERE v.offset > 0 RETURN v", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.write, isWriteQuery(tt.query))
		})
	}
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()
	stub := &stubClient{responses: map[string]*QueryResult{
		"RETURN v": {Rows: [][]interface{}{{"V1"}}},
	}}
	client, err := NewCachedClient(stub, QueryCacheConfig{MaxMemoryMB: 1, TTL: time.Minute, Enabled: true}, logging.GetLogger("graph.cache"))
	require.NoError(t, err)

	read := FindVarianceQuery("V1")
	_, err = client.ExecuteQuery(ctx, read)
	require.NoError(t, err)
	_, err = client.ExecuteQuery(ctx, read)
	require.NoError(t, err)
	assert.Len(t, stub.queries, 1, "second read is served from the cache")

	_, err = client.ExecuteQuery(ctx, UpsertNodeQuery(NodeTypeProduct, "PRD_A", nil))
	require.NoError(t, err)
	_, err = client.ExecuteQuery(ctx, read)
	require.NoError(t, err)
	assert.Len(t, stub.queries, 3, "a write clears cached reads")
	assert.Equal(t, uint64(1), client.CacheStats().Hits)
}

func TestQueryCacheConcurrentAccess(t *testing.T) {
	cache := newTestCache(t, 1, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				cache.Put(key, &QueryResult{Rows: [][]interface{}{{i, j}}})
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.Equal(t, uint64(800), stats.Hits+stats.Misses)
	assert.LessOrEqual(t, stats.Items, 10)
}
