package graph

import (
	"fmt"

	"github.com/FalkorDB/falkordb-go/v2"
	"github.com/moolen/costlens/internal/models"
)

// ParseNodeFromResult extracts node properties from a FalkorDB result value.
// A nil value (OPTIONAL MATCH without a match) yields an empty map.
func ParseNodeFromResult(nodeValue interface{}) (map[string]interface{}, error) {
	switch node := nodeValue.(type) {
	case nil:
		return make(map[string]interface{}), nil
	case falkordb.Node:
		return node.Properties, nil
	case *falkordb.Node:
		return node.Properties, nil
	case map[string]interface{}:
		return node, nil
	default:
		return nil, fmt.Errorf("unexpected node type: %T", nodeValue)
	}
}

// ParseEdgeFromResult extracts the relation type and properties of an edge value
func ParseEdgeFromResult(edgeValue interface{}) (edgeType string, properties map[string]interface{}, err error) {
	switch edge := edgeValue.(type) {
	case falkordb.Edge:
		return edge.Relation, edge.Properties, nil
	case *falkordb.Edge:
		return edge.Relation, edge.Properties, nil
	default:
		return "", nil, fmt.Errorf("unexpected edge type: %T", edgeValue)
	}
}

// VarianceFromProperties rebuilds a variance record from Variance node properties.
// The month is taken from the integer period property.
func VarianceFromProperties(props map[string]interface{}) (models.Variance, error) {
	month, err := monthFromProperties(props)
	if err != nil {
		return models.Variance{}, err
	}
	return models.Variance{
		ID:            GetStringProperty(props, "id"),
		Month:         month,
		Product:       GetStringProperty(props, "product"),
		ProductGroup:  GetStringProperty(props, "productGroup"),
		Process:       GetStringProperty(props, "process"),
		CostElement:   GetStringProperty(props, "costElement"),
		Type:          models.VarianceType(GetStringProperty(props, "type")),
		Amount:        GetFloat64Property(props, "amount"),
		Rate:          GetFloat64Property(props, "rate"),
		PriorAmount:   GetFloat64Property(props, "priorAmount"),
		CurrentAmount: GetFloat64Property(props, "currentAmount"),
	}, nil
}

// EventFromProperties rebuilds an event record from Event node properties
func EventFromProperties(props map[string]interface{}) (models.Event, error) {
	month, err := monthFromProperties(props)
	if err != nil {
		return models.Event{}, err
	}
	return models.Event{
		ID:          GetStringProperty(props, "id"),
		Month:       month,
		Source:      models.EventSource(GetStringProperty(props, "source")),
		Type:        GetStringProperty(props, "type"),
		TargetRef:   GetStringProperty(props, "targetRef"),
		PrevValue:   GetFloat64Property(props, "prevValue"),
		CurrValue:   GetFloat64Property(props, "currValue"),
		ChangeValue: GetFloat64Property(props, "changeValue"),
		ChangeRate:  GetFloat64Property(props, "changeRate"),
		Description: GetStringProperty(props, "description"),
	}, nil
}

func monthFromProperties(props map[string]interface{}) (models.Month, error) {
	if period := GetInt64Property(props, "period"); period > 0 {
		return models.NewMonth(int(period/100), int(period%100)), nil
	}
	month, err := models.ParseMonth(GetStringProperty(props, "month"))
	if err != nil {
		return models.Month{}, fmt.Errorf("node %q: %w", GetStringProperty(props, "id"), err)
	}
	return month, nil
}

// GetStringProperty safely extracts a string property
func GetStringProperty(props map[string]interface{}, key string) string {
	if val, ok := props[key].(string); ok {
		return val
	}
	return ""
}

// GetInt64Property safely extracts an integer property
func GetInt64Property(props map[string]interface{}, key string) int64 {
	return toInt64(props[key])
}

// GetFloat64Property safely extracts a numeric property
func GetFloat64Property(props map[string]interface{}, key string) float64 {
	return toFloat64(props[key])
}

// AsFloat64 converts a numeric result value such as s.similarity to float64.
// Other values yield 0.
func AsFloat64(value interface{}) float64 {
	return toFloat64(value)
}

// StringList converts a list value such as [n IN nodes(p) | n.id] to strings.
// Non-string elements become "".
func StringList(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			out[i] = s
		}
	}
	return out
}

func toInt64(value interface{}) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func toFloat64(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
