package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/moolen/costlens/internal/models"
)

// Query builders. Every write is a MERGE on the natural key followed by SET,
// so replaying a statement leaves the graph unchanged.

var propertyName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// setClause renders "SET n.a = $a, n.b = $b" for the given properties in key order.
// Parameter names are prefixed to keep them apart from key parameters.
func setClause(alias, prefix string, props map[string]interface{}, params map[string]interface{}) string {
	if len(props) == 0 {
		return ""
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		if !propertyName.MatchString(k) {
			panic(fmt.Sprintf("graph: invalid property name %q", k))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, len(keys))
	for i, k := range keys {
		param := prefix + k
		assignments[i] = fmt.Sprintf("%s.%s = $%s", alias, k, param)
		params[param] = props[k]
	}
	return "SET " + strings.Join(assignments, ", ")
}

// UpsertNodeQuery merges a node by its key property and sets the given properties
func UpsertNodeQuery(label NodeType, key string, props map[string]interface{}) GraphQuery {
	params := map[string]interface{}{"key": key}
	query := fmt.Sprintf("MERGE (n:%s {%s: $key}) %s", label, label.KeyProperty(), setClause("n", "p_", props, params))
	return GraphQuery{Query: strings.TrimSpace(query), Parameters: params}
}

// LinkByPropertyQuery merges edges between every pair of nodes whose property
// matches the other node's code, e.g. (ProductGroup)-[:CONTAINS]->(Product) where
// product.group = group.code. Set-based, one statement per relationship type.
func LinkByPropertyQuery(from NodeType, edge EdgeType, to NodeType, condition string) GraphQuery {
	return GraphQuery{
		Query: fmt.Sprintf("MATCH (a:%s), (b:%s) WHERE %s MERGE (a)-[:%s]->(b)", from, to, condition, edge),
	}
}

// LinkNodesQuery merges one edge between two nodes addressed by their keys.
// Nothing is written when either endpoint is missing.
func LinkNodesQuery(from NodeType, fromKey string, edge EdgeType, to NodeType, toKey string, props map[string]interface{}) GraphQuery {
	params := map[string]interface{}{"from": fromKey, "to": toKey}
	query := fmt.Sprintf(
		"MATCH (a:%s {%s: $from}) MATCH (b:%s {%s: $to}) MERGE (a)-[r:%s]->(b) %s",
		from, from.KeyProperty(), to, to.KeyProperty(), edge, setClause("r", "p_", props, params),
	)
	return GraphQuery{Query: strings.TrimSpace(query), Parameters: params}
}

// VarianceProperties returns the stored properties of a Variance node
func VarianceProperties(v models.Variance) map[string]interface{} {
	return map[string]interface{}{
		"month":         v.Month.String(),
		"period":        v.Month.Period(),
		"product":       v.Product,
		"productGroup":  v.ProductGroup,
		"process":       v.Process,
		"costElement":   v.CostElement,
		"type":          string(v.Type),
		"amount":        v.Amount,
		"rate":          v.Rate,
		"priorAmount":   v.PriorAmount,
		"currentAmount": v.CurrentAmount,
		"level":         string(v.Level()),
	}
}

// UpsertVarianceQuery merges a Variance node by id
func UpsertVarianceQuery(v models.Variance) GraphQuery {
	return UpsertNodeQuery(NodeTypeVariance, v.ID, VarianceProperties(v))
}

// UpsertEventQuery merges an Event node by id
func UpsertEventQuery(e models.Event) GraphQuery {
	return UpsertNodeQuery(NodeTypeEvent, e.ID, map[string]interface{}{
		"month":       e.Month.String(),
		"period":      e.Month.Period(),
		"source":      string(e.Source),
		"type":        e.Type,
		"targetRef":   e.TargetRef,
		"prevValue":   e.PrevValue,
		"currValue":   e.CurrValue,
		"changeValue": e.ChangeValue,
		"changeRate":  e.ChangeRate,
		"description": e.Description,
	})
}

// UpsertRuleEdgeQuery merges a rule edge keyed by (endpoints, type, ruleId) and sets its weights
func UpsertRuleEdgeQuery(edge RuleEdge) GraphQuery {
	params := map[string]interface{}{
		"from":   edge.FromID,
		"to":     edge.ToID,
		"ruleId": edge.RuleID,
	}
	query := fmt.Sprintf(
		"MATCH (a:%s {%s: $from}) MATCH (b:%s {%s: $to}) MERGE (a)-[r:%s {ruleId: $ruleId}]->(b) %s",
		edge.FromLabel, edge.FromLabel.KeyProperty(),
		edge.ToLabel, edge.ToLabel.KeyProperty(),
		edge.Type, setClause("r", "p_", edge.Properties, params),
	)
	return GraphQuery{Query: strings.TrimSpace(query), Parameters: params}
}

// FindVarianceQuery returns the Variance node with the given id
func FindVarianceQuery(id string) GraphQuery {
	return GraphQuery{
		Query:      "MATCH (v:Variance {id: $id}) RETURN v",
		Parameters: map[string]interface{}{"id": id},
	}
}
