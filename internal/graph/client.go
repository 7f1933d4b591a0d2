package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/logging"
)

// Client provides an interface for interacting with FalkorDB
type Client interface {
	// Connect establishes connection to FalkorDB
	Connect(ctx context.Context) error

	// Close closes the connection
	Close() error

	// Ping checks if the connection is alive
	Ping(ctx context.Context) error

	// ExecuteQuery executes a Cypher query and returns results
	ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error)

	// GetGraphStats returns node and edge counts by type
	GetGraphStats(ctx context.Context) (*GraphStats, error)

	// InitializeSchema creates indexes on every node key
	InitializeSchema(ctx context.Context) error

	// DeleteGraph removes the whole graph
	DeleteGraph(ctx context.Context) error
}

// ClientConfig holds configuration for the FalkorDB client
type ClientConfig struct {
	Host         string
	Port         int
	Password     string
	GraphName    string
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// QueryTimeoutMs applies to queries that do not set their own timeout
	QueryTimeoutMs int

	QueryCacheEnabled  bool
	QueryCacheMemoryMB int64
	QueryCacheTTL      time.Duration
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfigFrom(config.Default().Graph)
}

// ClientConfigFrom maps the graph section of the costlens configuration
func ClientConfigFrom(cfg config.GraphConfig) ClientConfig {
	return ClientConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Password:           cfg.Password,
		GraphName:          cfg.GraphName,
		MaxRetries:         cfg.MaxRetries,
		DialTimeout:        cfg.DialTimeout,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		PoolSize:           cfg.PoolSize,
		QueryTimeoutMs:     cfg.QueryTimeoutMs,
		QueryCacheEnabled:  cfg.QueryCache.Enabled,
		QueryCacheMemoryMB: cfg.QueryCache.MemoryMB,
		QueryCacheTTL:      cfg.QueryCache.TTL,
	}
}

// falkorClient implements the Client interface using FalkorDB Go client
type falkorClient struct {
	config ClientConfig
	logger *logging.Logger
	db     *falkordb.FalkorDB
	graph  *falkordb.Graph
}

// NewClient creates a new FalkorDB client, wrapped in a read-query cache when enabled
func NewClient(config ClientConfig) Client {
	client := &falkorClient{
		config: config,
		logger: logging.GetLogger("graph.client"),
	}

	if config.QueryCacheEnabled {
		cacheConfig := QueryCacheConfig{
			MaxMemoryMB: config.QueryCacheMemoryMB,
			TTL:         config.QueryCacheTTL,
			Enabled:     true,
		}

		cachedClient, err := NewCachedClient(client, cacheConfig, logging.GetLogger("graph.cache"))
		if err != nil {
			client.logger.Warn("Failed to create query cache, continuing without caching: %v", err)
			return client
		}
		return cachedClient
	}

	return client
}

// Connect establishes connection to FalkorDB
func (c *falkorClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to FalkorDB at %s:%d (graph: %s)", c.config.Host, c.config.Port, c.config.GraphName)

	// falkordb.ConnectionOption is an alias for redis.Options
	connOpts := &falkordb.ConnectionOption{
		Addr:         fmt.Sprintf("%s:%d", c.config.Host, c.config.Port),
		Password:     c.config.Password,
		DialTimeout:  c.config.DialTimeout,
		ReadTimeout:  c.config.ReadTimeout,
		WriteTimeout: c.config.WriteTimeout,
		PoolSize:     c.config.PoolSize,
		MaxRetries:   c.config.MaxRetries,
	}

	db, err := falkordb.FalkorDBNew(connOpts)
	if err != nil {
		return fmt.Errorf("failed to create FalkorDB client: %w", err)
	}
	c.db = db
	c.graph = db.SelectGraph(c.config.GraphName)

	c.logger.Debug("Connected to FalkorDB")
	return nil
}

// Close closes the connection
func (c *falkorClient) Close() error {
	if c.db != nil && c.db.Conn != nil {
		return c.db.Conn.Close()
	}
	return nil
}

// Ping runs a trivial query, the driver has no dedicated ping
func (c *falkorClient) Ping(ctx context.Context) error {
	if c.graph == nil {
		return fmt.Errorf("client not connected")
	}
	_, err := c.graph.Query("RETURN 1", nil, nil)
	return err
}

// ExecuteQuery executes a Cypher query and returns results
func (c *falkorClient) ExecuteQuery(ctx context.Context, query GraphQuery) (*QueryResult, error) {
	if c.graph == nil {
		return nil, fmt.Errorf("client not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := query.Timeout
	if timeout == 0 {
		timeout = c.config.QueryTimeoutMs
	}
	var options *falkordb.QueryOptions
	if timeout > 0 {
		options = falkordb.NewQueryOptions().SetTimeout(timeout)
	}

	startTime := time.Now()
	result, err := c.graph.Query(query.Query, query.Parameters, options)
	executionTime := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	queryResult := convertFalkorDBResult(result)
	queryResult.Stats.ExecutionTime = executionTime
	return queryResult, nil
}

// convertFalkorDBResult copies rows and statistics out of the driver result.
// Column names come from the first record.
func convertFalkorDBResult(result *falkordb.QueryResult) *QueryResult {
	qr := &QueryResult{
		Columns: []string{},
		Rows:    [][]interface{}{},
	}

	firstRow := true
	for result.Next() {
		record := result.Record()
		if firstRow {
			qr.Columns = record.Keys()
			firstRow = false
		}
		qr.Rows = append(qr.Rows, record.Values())
	}

	qr.Stats = QueryStats{
		NodesCreated:         result.NodesCreated(),
		NodesDeleted:         result.NodesDeleted(),
		RelationshipsCreated: result.RelationshipsCreated(),
		RelationshipsDeleted: result.RelationshipsDeleted(),
		PropertiesSet:        result.PropertiesSet(),
		LabelsAdded:          result.LabelsAdded(),
	}
	return qr
}

// GetGraphStats retrieves node and edge counts by type
func (c *falkorClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	return collectGraphStats(ctx, c)
}

// collectGraphStats runs the two count queries through any Client
func collectGraphStats(ctx context.Context, client Client) (*GraphStats, error) {
	nodeResult, err := client.ExecuteQuery(ctx, GraphQuery{
		Query: "MATCH (n) RETURN labels(n)[0] AS type, count(n) AS count",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query node counts: %w", err)
	}

	edgeResult, err := client.ExecuteQuery(ctx, GraphQuery{
		Query: "MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS count",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query edge counts: %w", err)
	}

	stats := &GraphStats{
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, row := range nodeResult.Rows {
		if len(row) < 2 {
			continue
		}
		if label, ok := row[0].(string); ok {
			count := int(toInt64(row[1]))
			stats.NodesByType[NodeType(label)] = count
			stats.NodeCount += count
		}
	}
	for _, row := range edgeResult.Rows {
		if len(row) < 2 {
			continue
		}
		if relType, ok := row[0].(string); ok {
			count := int(toInt64(row[1]))
			stats.EdgesByType[EdgeType(relType)] = count
			stats.EdgeCount += count
		}
	}

	return stats, nil
}

// InitializeSchema creates indexes on every node key plus the Variance lookup properties
func (c *falkorClient) InitializeSchema(ctx context.Context) error {
	c.logger.Info("Initializing graph schema for graph: %s", c.config.GraphName)

	for _, indexQuery := range IndexQueries() {
		if _, err := c.ExecuteQuery(ctx, GraphQuery{Query: indexQuery}); err != nil {
			// FalkorDB errors when the index already exists
			c.logger.Debug("Index not created (may already exist): %v", err)
		}
	}
	return nil
}

// IndexQueries returns the CREATE INDEX statements for the cost graph
func IndexQueries() []string {
	indexes := make([]string, 0, len(StructuralNodeTypes)+8)
	for _, label := range StructuralNodeTypes {
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.code)", label))
	}
	for _, prop := range []string{"id", "month", "period", "type", "product"} {
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.%s)", NodeTypeVariance, prop))
	}
	for _, prop := range []string{"id", "month"} {
		indexes = append(indexes, fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.%s)", NodeTypeEvent, prop))
	}
	return indexes
}

// DeleteGraph removes the graph; a missing graph is not an error
func (c *falkorClient) DeleteGraph(ctx context.Context) error {
	if c.graph == nil {
		return fmt.Errorf("client not connected")
	}

	if err := c.graph.Delete(); err != nil {
		// "empty key" means the graph does not exist yet
		if !strings.Contains(err.Error(), "empty key") {
			return fmt.Errorf("failed to delete graph: %w", err)
		}
		c.logger.Debug("Graph '%s' does not exist, nothing to delete", c.config.GraphName)
	} else {
		c.logger.Info("Graph '%s' deleted", c.config.GraphName)
	}

	c.graph = c.db.SelectGraph(c.config.GraphName)
	return nil
}

// Component adapts a Client to lifecycle.Component
type Component struct {
	client Client
}

// NewComponent wraps client for the lifecycle manager
func NewComponent(client Client) *Component {
	return &Component{client: client}
}

// Start connects and verifies the connection
func (g *Component) Start(ctx context.Context) error {
	if err := g.client.Connect(ctx); err != nil {
		return err
	}
	if err := g.client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach FalkorDB: %w", err)
	}
	return nil
}

// Stop closes the connection
func (g *Component) Stop(ctx context.Context) error {
	return g.client.Close()
}

// Name implements lifecycle.Component
func (g *Component) Name() string {
	return "Graph Client"
}
