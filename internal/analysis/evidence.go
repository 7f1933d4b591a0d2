package analysis

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// Evidence assembles the evidence package of one variance. The target is
// looked up first; the four sections are then queried concurrently and the
// first failure aborts the rest.
func (a *Analyzer) Evidence(ctx context.Context, varianceID string) (*EvidencePackage, error) {
	start := time.Now()

	target, err := a.FindVariance(ctx, varianceID)
	if err != nil {
		return nil, err
	}

	pkg := &EvidencePackage{Target: target}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		pkg.TimeSeries, err = a.timeSeries(gctx, target)
		return err
	})

	g.Go(func() error {
		var err error
		pkg.Events, err = a.matchedEvents(gctx, varianceID)
		return err
	})

	g.Go(func() error {
		var err error
		pkg.Spread, err = a.Spread(gctx, varianceID)
		return err
	})

	g.Go(func() error {
		var err error
		pkg.SimilarCases, err = a.similarCases(gctx, varianceID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to assemble evidence for %s: %w", varianceID, err)
	}

	a.logger.DebugWithFields("Evidence package assembled",
		logging.Field("variance", varianceID),
		logging.Field("events", len(pkg.Events)),
		logging.Field("spread", len(pkg.Spread)),
		logging.Field("similar", len(pkg.SimilarCases)),
		logging.Field("points", len(pkg.TimeSeries.Points)),
		logging.Field("duration_ms", time.Since(start).Milliseconds()),
	)
	return pkg, nil
}

// timeSeries loads the recent cost history of the target's cost key.
// Fewer than two points yield an empty series.
func (a *Analyzer) timeSeries(ctx context.Context, target models.Variance) (TimeSeries, error) {
	if a.series == nil || target.Product == "" {
		return TimeSeries{}, nil
	}

	key := models.CostKey{Product: target.Product, Process: target.Process, CostElement: target.CostElement}
	points, err := a.series.CostSeries(ctx, key, a.cfg.TimeSeriesMonths)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("failed to load cost series: %w", err)
	}
	return SummarizeSeries(points), nil
}

// SummarizeSeries computes mean, latest value and deviation of the latest value
// from the mean in percent. points must be ascending by month.
func SummarizeSeries(points []models.CostPoint) TimeSeries {
	if len(points) < 2 {
		return TimeSeries{}
	}

	amounts := make([]float64, len(points))
	for i, p := range points {
		amounts[i] = p.Amount
	}
	mean := stat.Mean(amounts, nil)
	latest := amounts[len(amounts)-1]

	var deviation float64
	if mean != 0 {
		deviation = (latest - mean) / mean * 100
	}

	return TimeSeries{
		Points:       points,
		Mean:         models.Round(mean, 2),
		Latest:       latest,
		DeviationPct: models.Round(deviation, 2),
	}
}

// matchedEventsQuery follows the causal decomposition of a variance down to
// the events that evidence any of its parts
func matchedEventsQuery(id string, depth int) graph.GraphQuery {
	return graph.GraphQuery{
		Query: fmt.Sprintf(`MATCH (v:Variance {id: $id})-[:CAUSED_BY*0..%d]->(:Variance)-[:EVIDENCED_BY]->(e:Event)
RETURN DISTINCT e
ORDER BY e.id`, depth),
		Parameters: map[string]interface{}{"id": id},
	}
}

func (a *Analyzer) matchedEvents(ctx context.Context, varianceID string) ([]models.Event, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, matchedEventsQuery(varianceID, a.cfg.EventDepth))
	if err != nil {
		return nil, fmt.Errorf("failed to query events of %s: %w", varianceID, err)
	}

	events := make([]models.Event, 0, len(result.Rows))
	seen := make(map[string]bool, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse event node: %w", err)
		}
		event, err := graph.EventFromProperties(props)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event node: %w", err)
		}
		if seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		events = append(events, event)
	}
	return events, nil
}

func similarCasesQuery(id string, limit int) graph.GraphQuery {
	return graph.GraphQuery{
		Query: fmt.Sprintf(`MATCH (v:Variance {id: $id})-[s:SIMILAR_TO]->(past:Variance)
RETURN past, s.similarity AS similarity, s.pattern AS pattern
ORDER BY similarity DESC, past.id
LIMIT %d`, limit),
		Parameters: map[string]interface{}{"id": id},
	}
}

func (a *Analyzer) similarCases(ctx context.Context, varianceID string) ([]SimilarCase, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, similarCasesQuery(varianceID, a.cfg.SimilarCasesLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query similar cases of %s: %w", varianceID, err)
	}

	cases := make([]SimilarCase, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		past, err := varianceFromValue(row[0])
		if err != nil {
			return nil, err
		}
		c := SimilarCase{Variance: past, Similarity: graph.AsFloat64(row[1])}
		if pattern, ok := row[2].(string); ok {
			c.Pattern = pattern
		}
		cases = append(cases, c)
	}
	return cases, nil
}
