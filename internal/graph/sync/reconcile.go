package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// ReconcileStats summarizes a prune of stale month nodes
type ReconcileStats struct {
	VariancesDeleted int
	EventsDeleted    int
	Duration         time.Duration
}

const (
	pruneVariancesQuery = `MATCH (v:Variance {period: $period})
WHERE NOT v.id IN $ids
DETACH DELETE v`

	pruneEventsQuery = `MATCH (e:Event {period: $period})
WHERE NOT e.id IN $ids
DETACH DELETE e`
)

// Reconcile deletes the month's Variance and Event nodes that the store no
// longer holds, together with their edges. Projection only merges, so a key
// dropped by a later decomposition would otherwise stay in the graph.
func (p *Projector) Reconcile(ctx context.Context, month models.Month) (*ReconcileStats, error) {
	start := time.Now()

	variances, err := p.source.LoadVariances(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load variances: %w", err)
	}
	events, err := p.source.LoadEvents(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	varianceIDs := make([]interface{}, len(variances))
	for i, v := range variances {
		varianceIDs[i] = v.ID
	}
	eventIDs := make([]interface{}, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
	}

	stats := &ReconcileStats{}

	result, err := p.client.ExecuteQuery(ctx, graph.GraphQuery{
		Query:      pruneVariancesQuery,
		Parameters: map[string]interface{}{"period": month.Period(), "ids": varianceIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune variances of %s: %w", month, err)
	}
	stats.VariancesDeleted = result.Stats.NodesDeleted

	result, err = p.client.ExecuteQuery(ctx, graph.GraphQuery{
		Query:      pruneEventsQuery,
		Parameters: map[string]interface{}{"period": month.Period(), "ids": eventIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune events of %s: %w", month, err)
	}
	stats.EventsDeleted = result.Stats.NodesDeleted

	stats.Duration = time.Since(start)
	if stats.VariancesDeleted > 0 || stats.EventsDeleted > 0 {
		p.logger.Info("Pruned %d stale variances and %d stale events of %s",
			stats.VariancesDeleted, stats.EventsDeleted, month)
	}
	return stats, nil
}
