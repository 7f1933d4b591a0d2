package sync

import (
	"math"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// Similarity patterns of rate variances
const (
	PatternRateIncrease = "RATE_INCREASE"
	PatternRateDecrease = "RATE_DECREASE"
)

// similarTypes are the variance types searched for past cases
var similarTypes = map[models.VarianceType]bool{
	models.VarianceTypeRate:     true,
	models.VarianceTypeQuantity: true,
	models.VarianceTypePrice:    true,
	models.VarianceTypeUsage:    true,
}

// evaluateSimilarity links significant variances to past variances of the same
// pool and type within the lookback window. The relative difference is measured
// against the current rate, so the metric is not symmetric.
func evaluateSimilarity(state *RuleState, cfg config.RulesConfig) []graph.RuleEdge {
	from := state.Month.AddMonths(-cfg.SimilarLookbackMonths)

	var edges []graph.RuleEdge
	for _, curr := range state.Variances {
		if !similarTypes[curr.Type] || curr.Product == "" || math.Abs(curr.Rate) < cfg.SignificanceThreshold {
			continue
		}
		for _, past := range state.History {
			if !past.Month.Before(state.Month) || past.Month.Before(from) {
				continue
			}
			if past.Process != curr.Process || past.CostElement != curr.CostElement || past.Type != curr.Type {
				continue
			}
			if sign(past.Amount) != sign(curr.Amount) {
				continue
			}
			relDiff := math.Abs(past.Rate-curr.Rate) / math.Abs(curr.Rate)
			if relDiff >= cfg.SimilarMaxRelativeDiff {
				continue
			}
			edges = append(edges, varianceEdge(graph.EdgeTypeSimilarTo, RuleSimilarity, curr.ID, past.ID,
				map[string]interface{}{
					"similarity": 1 - relDiff,
					"pattern":    Pattern(curr),
				}))
		}
	}
	return edges
}

// Pattern labels a variance by type and, for rate variances, by direction
func Pattern(v models.Variance) string {
	if v.Type == models.VarianceTypeRate {
		switch {
		case v.Amount > 0:
			return PatternRateIncrease
		case v.Amount < 0:
			return PatternRateDecrease
		}
	}
	return string(v.Type)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
