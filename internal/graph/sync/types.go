// Package sync writes the cost graph: the structural topology mirrored from
// reference data, the monthly variance and event nodes at their structural
// coordinates, and the causal edges inferred by the rule engine.
//
// Every statement is a MERGE on a natural key, so any stage can be rerun for a
// month without duplicating nodes or edges.
package sync

import (
	"context"
	"time"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// ReferenceSource provides the current reference data
type ReferenceSource interface {
	LoadReferenceData(ctx context.Context, materialProcess string) (*models.ReferenceData, error)
}

// MonthSource provides a month's stored variance records and events
type MonthSource interface {
	LoadVariances(ctx context.Context, month models.Month) ([]models.Variance, error)
	LoadEvents(ctx context.Context, month models.Month) ([]models.Event, error)
}

// BuildStats summarizes a structural build
type BuildStats struct {
	NodeStatements int
	LinkStatements int
	Stats          graph.QueryStats
	Duration       time.Duration
}

// ProjectionStats summarizes a monthly projection
type ProjectionStats struct {
	Variances int
	Events    int
	Stats     graph.QueryStats
	Duration  time.Duration
}

// RuleResult is the outcome of one rule
type RuleResult struct {
	RuleID   string
	Name     string
	Edges    int
	Stats    graph.QueryStats
	Duration time.Duration
}
