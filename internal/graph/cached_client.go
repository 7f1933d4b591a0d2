package graph

import (
	"context"
	"regexp"

	"github.com/moolen/costlens/internal/logging"
)

// CachedClient caches read query results. Any write query clears the cache,
// so reads issued after a pipeline stage never see pre-write results.
type CachedClient struct {
	underlying Client
	cache      *QueryCache
	logger     *logging.Logger
}

// NewCachedClient creates a new cached client wrapper
func NewCachedClient(client Client, config QueryCacheConfig, logger *logging.Logger) (*CachedClient, error) {
	cache, err := NewQueryCache(config, logger)
	if err != nil {
		return nil, err
	}
	return &CachedClient{
		underlying: client,
		cache:      cache,
		logger:     logger,
	}, nil
}

// Connect delegates to the underlying client
func (c *CachedClient) Connect(ctx context.Context) error {
	return c.underlying.Connect(ctx)
}

// Close delegates to the underlying client
func (c *CachedClient) Close() error {
	return c.underlying.Close()
}

// Ping delegates to the underlying client
func (c *CachedClient) Ping(ctx context.Context) error {
	return c.underlying.Ping(ctx)
}

// ExecuteQuery serves read queries from the cache when possible
func (c *CachedClient) ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error) {
	if isWriteQuery(query.Query) {
		result, err := c.underlying.ExecuteQuery(ctx, query)
		c.cache.Clear()
		return result, err
	}

	key := MakeQueryKey(query)
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}

	result, err := c.underlying.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, result)
	return result, nil
}

// GetGraphStats is never cached
func (c *CachedClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	return c.underlying.GetGraphStats(ctx)
}

// InitializeSchema delegates to the underlying client
func (c *CachedClient) InitializeSchema(ctx context.Context) error {
	return c.underlying.InitializeSchema(ctx)
}

// DeleteGraph drops the graph and every cached result
func (c *CachedClient) DeleteGraph(ctx context.Context) error {
	defer c.cache.Clear()
	return c.underlying.DeleteGraph(ctx)
}

// CacheStats returns cache statistics
func (c *CachedClient) CacheStats() QueryCacheStats {
	return c.cache.Stats()
}

var writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|SET|REMOVE)\b`)

// isWriteQuery reports whether the query contains a write clause
func isWriteQuery(query string) bool {
	return writeClause.MatchString(query)
}
