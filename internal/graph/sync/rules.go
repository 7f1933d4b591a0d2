package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// Rule ids carried on every rule edge
const (
	RuleDecomposition     = "RULE_01"
	RuleRateDecomposition = "RULE_02"
	RuleProductionEvents  = "RULE_03"
	RuleProcurementEvents = "RULE_04a"
	RuleDesignEvents      = "RULE_04b"
	RuleSpread            = "RULE_05"
	RuleSimilarity        = "RULE_06"
)

// Rule is one causal inference rule. Evaluate is pure: it maps the graph state
// to the edges the rule proposes.
type Rule struct {
	ID          string
	Name        string
	Description string
	Evaluate    func(state *RuleState, cfg config.RulesConfig) []graph.RuleEdge
}

// DefaultRules returns the six rules in execution order
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          RuleDecomposition,
			Name:        "decomposition",
			Description: "Rate variance to quantity variance and price variance to usage variance; aggregates to details",
			Evaluate:    evaluateDecomposition,
		},
		{
			ID:          RuleRateDecomposition,
			Name:        "rate-decomposition",
			Description: "Rate variance to its cost and basis effects",
			Evaluate:    evaluateRateDecomposition,
		},
		{
			ID:          RuleProductionEvents,
			Name:        "production-evidence",
			Description: "Basis effect to utilization changes of equipment under the process",
			Evaluate:    evaluateProductionEvidence,
		},
		{
			ID:          "RULE_04",
			Name:        "material-evidence",
			Description: "Price variance to procurement price changes, usage variance to design changes",
			Evaluate:    evaluateMaterialEvidence,
		},
		{
			ID:          RuleSpread,
			Name:        "spread",
			Description: "Rate shock to every other product drawing on the same allocation pool",
			Evaluate:    evaluateSpread,
		},
		{
			ID:          RuleSimilarity,
			Name:        "similarity",
			Description: "Significant variance to similar past variances of the same pool and type",
			Evaluate:    evaluateSimilarity,
		},
	}
}

// RuleEngine runs the causal rules for a month
type RuleEngine struct {
	client      graph.Client
	cfg         config.RulesConfig
	concurrency int
	rules       []Rule
	logger      *logging.Logger
}

// NewRuleEngine creates a rule engine with the default rules
func NewRuleEngine(client graph.Client, cfg config.RulesConfig, concurrency int) *RuleEngine {
	return &RuleEngine{
		client:      client,
		cfg:         cfg,
		concurrency: concurrency,
		rules:       DefaultRules(),
		logger:      logging.GetLogger("graph.sync.rules"),
	}
}

// Rules returns the registered rules in execution order
func (e *RuleEngine) Rules() []Rule {
	return e.rules
}

// Run evaluates every rule in order and merges the proposed edges.
// A rule without matches is a success. There is no rollback across rules.
func (e *RuleEngine) Run(ctx context.Context, month models.Month) ([]RuleResult, error) {
	state, err := LoadRuleState(ctx, e.client, month, e.cfg.SimilarLookbackMonths)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Rule state for %s: %d variances, %d history, %d events",
		month, len(state.Variances), len(state.History), len(state.Events))

	results := make([]RuleResult, 0, len(e.rules))
	for _, rule := range e.rules {
		start := time.Now()
		edges := rule.Evaluate(state, e.cfg)

		queries := make([]graph.GraphQuery, len(edges))
		for i, edge := range edges {
			queries[i] = graph.UpsertRuleEdgeQuery(edge)
		}

		stats, err := writeAll(ctx, e.client, queries, e.concurrency)
		if err != nil {
			return results, fmt.Errorf("rule %s failed: %w", rule.ID, err)
		}

		result := RuleResult{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Edges:    len(edges),
			Stats:    stats,
			Duration: time.Since(start),
		}
		results = append(results, result)
		e.logger.InfoWithFields("Rule complete",
			logging.Field("rule", rule.ID),
			logging.Field("month", month.String()),
			logging.Field("edges", result.Edges),
			logging.Field("created", stats.RelationshipsCreated),
		)
	}
	return results, nil
}

// familyKey identifies a decomposition family
type familyKey struct {
	product     string
	process     string
	costElement string
}

func keyOf(v models.Variance) familyKey {
	return familyKey{product: v.Product, process: v.Process, costElement: v.CostElement}
}

// indexByFamily maps family and type to the variance
func indexByFamily(variances []models.Variance) map[familyKey]map[models.VarianceType]models.Variance {
	index := make(map[familyKey]map[models.VarianceType]models.Variance)
	for _, v := range variances {
		k := keyOf(v)
		if index[k] == nil {
			index[k] = make(map[models.VarianceType]models.Variance)
		}
		index[k][v.Type] = v
	}
	return index
}

func varianceEdge(edgeType graph.EdgeType, ruleID string, from, to string, props map[string]interface{}) graph.RuleEdge {
	return graph.RuleEdge{
		Type:       edgeType,
		FromLabel:  graph.NodeTypeVariance,
		FromID:     from,
		ToLabel:    graph.NodeTypeVariance,
		ToID:       to,
		RuleID:     ruleID,
		Properties: props,
	}
}

func evidenceEdge(ruleID string, varianceID, eventID string, confidence float64) graph.RuleEdge {
	return graph.RuleEdge{
		Type:       graph.EdgeTypeEvidencedBy,
		FromLabel:  graph.NodeTypeVariance,
		FromID:     varianceID,
		ToLabel:    graph.NodeTypeEvent,
		ToID:       eventID,
		RuleID:     ruleID,
		Properties: map[string]interface{}{"confidence": confidence},
	}
}
