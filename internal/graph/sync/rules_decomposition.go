package sync

import (
	"math"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// siblingPairs are the decomposition pairs linked by rule 1, parent first
var siblingPairs = [][2]models.VarianceType{
	{models.VarianceTypeRate, models.VarianceTypeQuantity},
	{models.VarianceTypePrice, models.VarianceTypeUsage},
}

// detailTypes are the variances an aggregate TOTAL_VAR is linked to
var detailTypes = map[models.VarianceType]bool{
	models.VarianceTypeRate:     true,
	models.VarianceTypeQuantity: true,
	models.VarianceTypePrice:    true,
	models.VarianceTypeUsage:    true,
}

func evaluateDecomposition(state *RuleState, _ config.RulesConfig) []graph.RuleEdge {
	var edges []graph.RuleEdge
	families := indexByFamily(state.Variances)

	// aggregates to details, contribution |detail| / sum |details|
	for _, total := range state.Variances {
		if total.Type != models.VarianceTypeTotal || total.Product == "" {
			continue
		}
		var details []models.Variance
		var sum float64
		for _, d := range state.Variances {
			if d.Product == total.Product && detailTypes[d.Type] && d.Amount != 0 {
				details = append(details, d)
				sum += math.Abs(d.Amount)
			}
		}
		for _, d := range details {
			edges = append(edges, varianceEdge(graph.EdgeTypeCausedBy, RuleDecomposition, total.ID, d.ID,
				map[string]interface{}{"contribution": math.Abs(d.Amount) / sum}))
		}
	}

	// sibling pairs, contribution |this| / (|this| + |sibling|)
	for _, v := range state.Variances {
		if v.Product == "" {
			continue
		}
		for _, pair := range siblingPairs {
			if v.Type != pair[0] {
				continue
			}
			sibling, ok := families[keyOf(v)][pair[1]]
			if !ok {
				continue
			}
			totalAbs := math.Abs(v.Amount) + math.Abs(sibling.Amount)
			if totalAbs == 0 {
				continue
			}
			edges = append(edges, varianceEdge(graph.EdgeTypeCausedBy, RuleDecomposition, v.ID, sibling.ID,
				map[string]interface{}{"contribution": math.Abs(v.Amount) / totalAbs}))
		}
	}

	return edges
}

// evaluateRateDecomposition links RATE_VAR to RATE_COST and RATE_BASE with the raw
// ratio |child| / |rate variance|. Effects of opposite sign make it exceed 1.
func evaluateRateDecomposition(state *RuleState, _ config.RulesConfig) []graph.RuleEdge {
	var edges []graph.RuleEdge
	families := indexByFamily(state.Variances)

	for _, rv := range state.Variances {
		if rv.Type != models.VarianceTypeRate || rv.Product == "" {
			continue
		}
		for _, childType := range []models.VarianceType{models.VarianceTypeRateCost, models.VarianceTypeRateBasis} {
			child, ok := families[keyOf(rv)][childType]
			if !ok {
				continue
			}
			var contribution float64
			if rv.Amount != 0 {
				contribution = math.Abs(child.Amount) / math.Abs(rv.Amount)
			}
			edges = append(edges, varianceEdge(graph.EdgeTypeCausedBy, RuleRateDecomposition, rv.ID, child.ID,
				map[string]interface{}{"contribution": contribution}))
		}
	}
	return edges
}
