package sync

import (
	"context"
	gosync "sync"

	"github.com/moolen/costlens/internal/graph"
	"golang.org/x/sync/errgroup"
)

// writeAll executes independent write statements with at most concurrency in
// flight. The first error cancels the remaining statements.
func writeAll(ctx context.Context, client graph.Client, queries []graph.GraphQuery, concurrency int) (graph.QueryStats, error) {
	var (
		mu    gosync.Mutex
		total graph.QueryStats
	)
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, q := range queries {
		g.Go(func() error {
			result, err := client.ExecuteQuery(gctx, q)
			if err != nil {
				return err
			}
			mu.Lock()
			total.Add(result.Stats)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return total, err
}
