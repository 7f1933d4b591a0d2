package sync

import (
	"context"
	"strings"
	gosync "sync"

	"github.com/moolen/costlens/internal/graph"
)

// mockClient records every query and answers by substring match. Safe for
// concurrent writers.
type mockClient struct {
	mu        gosync.Mutex
	queries   []graph.GraphQuery
	responses map[string]*graph.QueryResult
	failOn    string
	err       error

	deleted     bool
	initialized bool
}

func newMockClient() *mockClient {
	return &mockClient{responses: make(map[string]*graph.QueryResult)}
}

func (m *mockClient) Connect(ctx context.Context) error { return nil }
func (m *mockClient) Close() error                      { return nil }
func (m *mockClient) Ping(ctx context.Context) error    { return nil }

func (m *mockClient) ExecuteQuery(ctx context.Context, query graph.GraphQuery) (*graph.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)

	if m.err != nil && (m.failOn == "" || strings.Contains(query.Query, m.failOn)) {
		return nil, m.err
	}
	for fragment, result := range m.responses {
		if strings.Contains(query.Query, fragment) {
			return result, nil
		}
	}
	return &graph.QueryResult{Stats: graph.QueryStats{PropertiesSet: 1}}, nil
}

func (m *mockClient) GetGraphStats(ctx context.Context) (*graph.GraphStats, error) {
	return &graph.GraphStats{}, nil
}

func (m *mockClient) InitializeSchema(ctx context.Context) error {
	m.initialized = true
	return nil
}

func (m *mockClient) DeleteGraph(ctx context.Context) error {
	m.deleted = true
	return nil
}

func (m *mockClient) recorded() []graph.GraphQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]graph.GraphQuery(nil), m.queries...)
}

// queryTexts returns the recorded statements containing fragment
func (m *mockClient) queryTexts(fragment string) []string {
	var out []string
	for _, q := range m.recorded() {
		if strings.Contains(q.Query, fragment) {
			out = append(out, q.Query)
		}
	}
	return out
}
