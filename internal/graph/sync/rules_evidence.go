package sync

import (
	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

// evaluateProductionEvidence links basis effects to utilization changes of
// equipment reachable from the variance's process
func evaluateProductionEvidence(state *RuleState, cfg config.RulesConfig) []graph.RuleEdge {
	var edges []graph.RuleEdge
	for _, v := range state.Variances {
		if v.Type != models.VarianceTypeRateBasis {
			continue
		}
		equipment := state.ProcessEquipment[v.Process]
		if len(equipment) == 0 {
			continue
		}
		for _, e := range state.Events {
			if e.Source == models.EventSourceEquipmentMetric &&
				e.Type == models.EventTypeUtilizationChange &&
				equipment[e.Target] {
				edges = append(edges, evidenceEdge(RuleProductionEvents, v.ID, e.ID, cfg.ProductionEvidenceScore))
			}
		}
	}
	return edges
}

// evaluateMaterialEvidence links price variances to price changes of materials
// the product uses, and usage variances to design changes of the product
func evaluateMaterialEvidence(state *RuleState, cfg config.RulesConfig) []graph.RuleEdge {
	var edges []graph.RuleEdge
	for _, v := range state.Variances {
		if v.Product == "" {
			continue
		}
		switch v.Type {
		case models.VarianceTypePrice:
			materials := state.ProductMaterials[v.Product]
			for _, e := range state.Events {
				if e.Source == models.EventSourceProcurement &&
					e.Type == models.EventTypePriceChange &&
					materials[e.Target] {
					edges = append(edges, evidenceEdge(RuleProcurementEvents, v.ID, e.ID, cfg.ProcurementEvidenceScore))
				}
			}
		case models.VarianceTypeUsage:
			for _, e := range state.Events {
				if e.Source == models.EventSourceDesignChange &&
					e.Type == models.EventTypeBOMChange &&
					e.Target == v.Product {
					edges = append(edges, evidenceEdge(RuleDesignEvents, v.ID, e.ID, cfg.DesignChangeEvidenceScore))
				}
			}
		}
	}
	return edges
}
