package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/moolen/costlens/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAll(t *testing.T) {
	queries := make([]graph.GraphQuery, 50)
	for i := range queries {
		queries[i] = graph.GraphQuery{Query: fmt.Sprintf("MERGE (n:Product {code: 'P%03d'})", i)}
	}

	for _, concurrency := range []int{0, 1, 8} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			client := newMockClient()
			stats, err := writeAll(context.Background(), client, queries, concurrency)
			require.NoError(t, err)
			assert.Len(t, client.recorded(), 50)
			assert.Equal(t, 50, stats.PropertiesSet)
		})
	}
}

func TestWriteAllStopsOnError(t *testing.T) {
	client := newMockClient()
	client.err = errors.New("connection reset")

	_, err := writeAll(context.Background(), client, []graph.GraphQuery{{Query: "MERGE (n:Product {code: 'P1'})"}}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.err)
}

func TestWriteAllEmpty(t *testing.T) {
	client := newMockClient()
	stats, err := writeAll(context.Background(), client, nil, 4)
	require.NoError(t, err)
	assert.Equal(t, graph.QueryStats{}, stats)
	assert.Empty(t, client.recorded())
}
