// Package pipeline runs the monthly costlens stages in order: variance
// decomposition, structural graph sync, projection of variances and events,
// and the causal rules.
//
// Stages run strictly one after another. Each stage is idempotent, so a run
// that aborts half-way is recovered by running it again.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/graph/sync"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
	"github.com/moolen/costlens/internal/tracing"
)

// Stage names a pipeline step
type Stage string

const (
	StageDecompose Stage = "decompose"
	StageStructure Stage = "structure"
	StageProject   Stage = "project"
	StageRules     Stage = "rules"
)

// Stages lists every stage in execution order
var Stages = []Stage{StageDecompose, StageStructure, StageProject, StageRules}

// VarianceRunner computes and stores a month's variance records
type VarianceRunner interface {
	Run(ctx context.Context, month models.Month) ([]models.Variance, error)
}

// StructureRunner mirrors reference data into the graph
type StructureRunner interface {
	Build(ctx context.Context) (*sync.BuildStats, error)
	Rebuild(ctx context.Context) (*sync.BuildStats, error)
}

// ProjectionRunner writes a month's variance and event nodes and prunes stale ones
type ProjectionRunner interface {
	Project(ctx context.Context, month models.Month) (*sync.ProjectionStats, error)
	Reconcile(ctx context.Context, month models.Month) (*sync.ReconcileStats, error)
}

// RuleRunner applies the causal rules for a month
type RuleRunner interface {
	Run(ctx context.Context, month models.Month) ([]sync.RuleResult, error)
}

// Options selects the stages of a run
type Options struct {
	Skip map[Stage]bool
	// Rebuild drops the graph before the structure stage
	Rebuild bool
	// Prune deletes the month's graph nodes the store no longer holds after projection
	Prune bool
}

// Skipping returns Options that skip the given stages
func Skipping(stages ...Stage) Options {
	opts := Options{Skip: make(map[Stage]bool, len(stages))}
	for _, s := range stages {
		opts.Skip[s] = true
	}
	return opts
}

// StageResult is the outcome of one stage
type StageResult struct {
	Stage    Stage         `json:"stage" yaml:"stage"`
	Skipped  bool          `json:"skipped" yaml:"skipped"`
	Items    int           `json:"items" yaml:"items"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Err      error         `json:"-" yaml:"-"`
}

// Result summarizes a pipeline run
type Result struct {
	RunID      string            `json:"runId" yaml:"runId"`
	Month      models.Month      `json:"month" yaml:"month"`
	Stages     []StageResult     `json:"stages" yaml:"stages"`
	Rules      []sync.RuleResult `json:"rules,omitempty" yaml:"rules,omitempty"`
	GraphStats *graph.GraphStats `json:"graphStats,omitempty" yaml:"graphStats,omitempty"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`
}

// Pipeline wires the stage runners together
type Pipeline struct {
	variance  VarianceRunner
	structure StructureRunner
	projector ProjectionRunner
	rules     RuleRunner
	client    graph.Client
	metrics   *Metrics
	logger    *logging.Logger
}

// New creates a pipeline. client is only used for graph statistics after a
// run and may be nil. metrics may be nil.
func New(varianceRunner VarianceRunner, structure StructureRunner, projector ProjectionRunner, rules RuleRunner, client graph.Client, metrics *Metrics) *Pipeline {
	return &Pipeline{
		variance:  varianceRunner,
		structure: structure,
		projector: projector,
		rules:     rules,
		client:    client,
		metrics:   metrics,
		logger:    logging.GetLogger("pipeline"),
	}
}

// Run executes the selected stages for month in order. The first failing
// stage ends the run; the partial result is returned with the error.
func (p *Pipeline) Run(ctx context.Context, month models.Month, opts Options) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		attribute.String("costlens.run_id", runID),
		attribute.String("costlens.month", month.String()),
	)
	var runErr error
	defer func() { tracing.EndSpan(span, runErr) }()

	logger := p.logger.WithContext(ctx).WithField("run_id", runID)
	logger.Info("Starting pipeline run for %s", month)

	result := &Result{RunID: runID, Month: month}

	for _, stage := range Stages {
		r := p.runStage(ctx, stage, month, opts, result)
		result.Stages = append(result.Stages, r)
		if p.metrics != nil {
			p.metrics.observeStage(r)
		}

		switch {
		case r.Skipped:
			logger.Debug("Stage %s skipped", stage)
		case r.Err != nil:
			logger.ErrorWithFields("Stage failed",
				logging.Field("stage", string(stage)),
				logging.Field("error", r.Err.Error()),
			)
			runErr = fmt.Errorf("stage %s failed: %w", stage, r.Err)
			result.Duration = time.Since(start)
			return result, runErr
		default:
			logger.InfoWithFields("Stage complete",
				logging.Field("stage", string(stage)),
				logging.Field("items", r.Items),
				logging.Field("duration_ms", r.Duration.Milliseconds()),
			)
		}
	}

	if p.client != nil {
		stats, err := p.client.GetGraphStats(ctx)
		if err != nil {
			logger.Warn("Failed to read graph statistics: %v", err)
		} else {
			result.GraphStats = stats
			logger.InfoWithFields("Graph statistics",
				logging.Field("nodes", stats.NodeCount),
				logging.Field("edges", stats.EdgeCount),
			)
		}
	}

	if p.metrics != nil {
		p.metrics.LastSuccess.SetToCurrentTime()
	}
	result.Duration = time.Since(start)
	logger.Info("Pipeline run for %s complete in %v", month, result.Duration)
	return result, nil
}

// runStage executes one stage inside its own span
func (p *Pipeline) runStage(ctx context.Context, stage Stage, month models.Month, opts Options, result *Result) StageResult {
	r := StageResult{Stage: stage}
	if opts.Skip[stage] {
		r.Skipped = true
		return r
	}

	ctx, span := tracing.StartSpan(ctx, "pipeline."+string(stage),
		attribute.String("costlens.month", month.String()),
	)
	start := time.Now()
	r.Items, r.Err = p.execute(ctx, stage, month, opts, result)
	r.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("costlens.items", r.Items))
	tracing.EndSpan(span, r.Err)
	return r
}

func (p *Pipeline) execute(ctx context.Context, stage Stage, month models.Month, opts Options, result *Result) (int, error) {
	switch stage {
	case StageDecompose:
		variances, err := p.variance.Run(ctx, month)
		return len(variances), err

	case StageStructure:
		build := p.structure.Build
		if opts.Rebuild {
			build = p.structure.Rebuild
		}
		stats, err := build(ctx)
		if err != nil {
			return 0, err
		}
		return stats.NodeStatements + stats.LinkStatements, nil

	case StageProject:
		stats, err := p.projector.Project(ctx, month)
		if err != nil {
			return 0, err
		}
		if opts.Prune {
			if _, err := p.projector.Reconcile(ctx, month); err != nil {
				return 0, err
			}
		}
		return stats.Variances + stats.Events, nil

	case StageRules:
		rules, err := p.rules.Run(ctx, month)
		result.Rules = rules
		edges := 0
		for _, r := range rules {
			edges += r.Edges
		}
		return edges, err

	default:
		return 0, fmt.Errorf("unknown stage %q", stage)
	}
}
