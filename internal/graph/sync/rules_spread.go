package sync

import (
	"math"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// poolKey identifies an allocation pool
type poolKey struct {
	process     string
	costElement string
}

// evaluateSpread links every rate variance at or above the spread threshold to
// the rate variances of the other products drawing on the same pool
func evaluateSpread(state *RuleState, cfg config.RulesConfig) []graph.RuleEdge {
	pools := make(map[poolKey][]models.Variance)
	for _, v := range state.Variances {
		if v.Type == models.VarianceTypeRate && v.Product != "" {
			k := poolKey{process: v.Process, costElement: v.CostElement}
			pools[k] = append(pools[k], v)
		}
	}

	var edges []graph.RuleEdge
	for _, v := range state.Variances {
		if v.Type != models.VarianceTypeRate || v.Product == "" || math.Abs(v.Rate) < cfg.SpreadRateThreshold {
			continue
		}
		for _, other := range pools[poolKey{process: v.Process, costElement: v.CostElement}] {
			if other.Product == v.Product {
				continue
			}
			edges = append(edges, varianceEdge(graph.EdgeTypeSpreadsTo, RuleSpread, v.ID, other.ID,
				map[string]interface{}{"allocationBasis": v.Process}))
		}
	}
	return edges
}
