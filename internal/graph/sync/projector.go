package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// Projector places a month's variance records and events onto the graph
type Projector struct {
	client      graph.Client
	source      MonthSource
	concurrency int
	logger      *logging.Logger
}

// NewProjector creates a variance/event projector
func NewProjector(client graph.Client, source MonthSource, concurrency int) *Projector {
	return &Projector{
		client:      client,
		source:      source,
		concurrency: concurrency,
		logger:      logging.GetLogger("graph.sync.projector"),
	}
}

// Project loads the month's stored variances and events and projects them
func (p *Projector) Project(ctx context.Context, month models.Month) (*ProjectionStats, error) {
	variances, err := p.source.LoadVariances(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load variances: %w", err)
	}
	events, err := p.source.LoadEvents(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return p.ProjectRecords(ctx, variances, events)
}

// ProjectRecords merges one node per record, then the positional edges.
// A positional edge whose structural endpoint is missing is not created.
func (p *Projector) ProjectRecords(ctx context.Context, variances []models.Variance, events []models.Event) (*ProjectionStats, error) {
	start := time.Now()
	stats := &ProjectionStats{Variances: len(variances), Events: len(events)}

	nodes := make([]graph.GraphQuery, 0, len(variances)+len(events))
	for _, v := range variances {
		nodes = append(nodes, graph.UpsertVarianceQuery(v))
	}
	for _, e := range events {
		nodes = append(nodes, graph.UpsertEventQuery(e))
	}

	nodeStats, err := writeAll(ctx, p.client, nodes, p.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert variance and event nodes: %w", err)
	}
	stats.Stats.Add(nodeStats)

	linkStats, err := writeAll(ctx, p.client, PositionQueries(variances, events), p.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to link variance and event nodes: %w", err)
	}
	stats.Stats.Add(linkStats)

	stats.Duration = time.Since(start)
	p.logger.Info("Projected %d variances and %d events (%d relationships created) in %v",
		stats.Variances, stats.Events, stats.Stats.RelationshipsCreated, stats.Duration)
	return stats, nil
}

// PositionQueries returns OCCURS_AT, OCCURS_IN and RELATES_TO for every variance
// and INVOLVES for every event. Group-level variances have no OCCURS_AT.
func PositionQueries(variances []models.Variance, events []models.Event) []graph.GraphQuery {
	var queries []graph.GraphQuery

	for _, v := range variances {
		if v.Product != "" {
			queries = append(queries, graph.LinkNodesQuery(
				graph.NodeTypeVariance, v.ID, graph.EdgeTypeOccursAt, graph.NodeTypeProduct, v.Product, nil))
		}
		if v.Process != "" {
			queries = append(queries, graph.LinkNodesQuery(
				graph.NodeTypeVariance, v.ID, graph.EdgeTypeOccursIn, graph.NodeTypeProcess, v.Process, nil))
		}
		if v.CostElement != "" {
			queries = append(queries, graph.LinkNodesQuery(
				graph.NodeTypeVariance, v.ID, graph.EdgeTypeRelatesTo, graph.NodeTypeCostElement, v.CostElement, nil))
		}
	}

	for _, e := range events {
		label := e.Source.TargetLabel()
		if label == "" || e.TargetRef == "" {
			continue
		}
		queries = append(queries, graph.LinkNodesQuery(
			graph.NodeTypeEvent, e.ID, graph.EdgeTypeInvolves, graph.NodeType(label), e.TargetRef, nil))
	}

	return queries
}
