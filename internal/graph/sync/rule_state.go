package sync

import (
	"context"
	"fmt"

	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
)

const (
	monthVariancesQuery = "MATCH (v:Variance) WHERE v.period = $period RETURN v ORDER BY v.id"

	historyVariancesQuery = "MATCH (v:Variance) WHERE v.period >= $from AND v.period < $to RETURN v ORDER BY v.id"

	monthEventsQuery = "MATCH (e:Event) WHERE e.period = $period " +
		"OPTIONAL MATCH (e)-[:INVOLVES]->(t) RETURN e, t.code ORDER BY e.id"

	processEquipmentQuery = "MATCH (p:Process)-[:HAS_SUBPROCESS]->(:ProcessGroup)-[:HAS_EQUIPMENT]->(eq:Equipment) " +
		"RETURN DISTINCT p.code, eq.code"

	productMaterialsQuery = "MATCH (p:Product)-[:USES_MATERIAL]->(m:Material) RETURN p.code, m.code"
)

// InvolvedEvent is an event together with the code of the structural node its
// INVOLVES edge points at. Target is empty when the edge is missing.
type InvolvedEvent struct {
	models.Event
	Target string
}

// RuleState is the slice of the graph the rules evaluate, read once per run
type RuleState struct {
	Month     models.Month
	Variances []models.Variance
	// History holds variances of the lookback window [Month-lookback, Month)
	History []models.Variance
	Events  []InvolvedEvent
	// ProcessEquipment maps a process to equipment reachable through its process group
	ProcessEquipment map[string]map[string]bool
	// ProductMaterials maps a product to the materials of its bill of materials
	ProductMaterials map[string]map[string]bool
}

// LoadRuleState reads the rule inputs for month from the graph
func LoadRuleState(ctx context.Context, client graph.Client, month models.Month, lookbackMonths int) (*RuleState, error) {
	state := &RuleState{Month: month}
	var err error

	state.Variances, err = queryVariances(ctx, client, graph.GraphQuery{
		Query:      monthVariancesQuery,
		Parameters: map[string]interface{}{"period": month.Period()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load variances of %s: %w", month, err)
	}

	state.History, err = queryVariances(ctx, client, graph.GraphQuery{
		Query: historyVariancesQuery,
		Parameters: map[string]interface{}{
			"from": month.AddMonths(-lookbackMonths).Period(),
			"to":   month.Period(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load variance history of %s: %w", month, err)
	}

	state.Events, err = queryEvents(ctx, client, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load events of %s: %w", month, err)
	}

	state.ProcessEquipment, err = queryPairs(ctx, client, processEquipmentQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load process equipment: %w", err)
	}

	state.ProductMaterials, err = queryPairs(ctx, client, productMaterialsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load product materials: %w", err)
	}

	return state, nil
}

func queryVariances(ctx context.Context, client graph.Client, query graph.GraphQuery) ([]models.Variance, error) {
	result, err := client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	variances := make([]models.Variance, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) == 0 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			return nil, err
		}
		v, err := graph.VarianceFromProperties(props)
		if err != nil {
			return nil, err
		}
		variances = append(variances, v)
	}
	return variances, nil
}

func queryEvents(ctx context.Context, client graph.Client, month models.Month) ([]InvolvedEvent, error) {
	result, err := client.ExecuteQuery(ctx, graph.GraphQuery{
		Query:      monthEventsQuery,
		Parameters: map[string]interface{}{"period": month.Period()},
	})
	if err != nil {
		return nil, err
	}

	events := make([]InvolvedEvent, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		props, err := graph.ParseNodeFromResult(row[0])
		if err != nil {
			return nil, err
		}
		e, err := graph.EventFromProperties(props)
		if err != nil {
			return nil, err
		}
		target, _ := row[1].(string)
		events = append(events, InvolvedEvent{Event: e, Target: target})
	}
	return events, nil
}

// queryPairs runs a two-column code query and indexes it as from -> set of to
func queryPairs(ctx context.Context, client graph.Client, query string) (map[string]map[string]bool, error) {
	result, err := client.ExecuteQuery(ctx, graph.GraphQuery{Query: query})
	if err != nil {
		return nil, err
	}

	pairs := make(map[string]map[string]bool)
	for _, row := range result.Rows {
		if len(row) < 2 {
			continue
		}
		from, _ := row[0].(string)
		to, _ := row[1].(string)
		if from == "" || to == "" {
			continue
		}
		if pairs[from] == nil {
			pairs[from] = make(map[string]bool)
		}
		pairs[from][to] = true
	}
	return pairs, nil
}
