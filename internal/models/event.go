package models

import "fmt"

// EventSource identifies the source system an event was ingested from
type EventSource string

const (
	EventSourceEquipmentMetric EventSource = "EQUIPMENT_METRIC"
	EventSourceDesignChange    EventSource = "DESIGN_CHANGE"
	EventSourceProcurement     EventSource = "PROCUREMENT"
)

// Event types matched by the rule engine
const (
	EventTypeUtilizationChange = "UTIL_CHG"
	EventTypeBOMChange         = "BOM_CHG"
	EventTypePriceChange       = "PRICE_CHG"
)

// Event is a source-system change placed on the graph next to the entity it touched
type Event struct {
	ID          string      `json:"id" yaml:"id"`
	Month       Month       `json:"month" yaml:"month"`
	Source      EventSource `json:"source" yaml:"source"`
	Type        string      `json:"type" yaml:"type"`
	TargetRef   string      `json:"targetRef" yaml:"targetRef"` // equipment, product or material code
	PrevValue   float64     `json:"prevValue" yaml:"prevValue"`
	CurrValue   float64     `json:"currValue" yaml:"currValue"`
	ChangeValue float64     `json:"changeValue" yaml:"changeValue"`
	ChangeRate  float64     `json:"changeRate" yaml:"changeRate"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

// EquipmentMetricEventID returns the id of an equipment metric event
func EquipmentMetricEventID(month Month, equipment, metric string) string {
	return fmt.Sprintf("MES_%s_%s_%s", month, equipment, metric)
}

// EquipmentMetricEventType maps a metric name (e.g. UTIL) to its change event type
func EquipmentMetricEventType(metric string) string {
	return metric + "_CHG"
}

// TargetLabel returns the graph label of the structural node an event involves
func (s EventSource) TargetLabel() string {
	switch s {
	case EventSourceEquipmentMetric:
		return "Equipment"
	case EventSourceDesignChange:
		return "Product"
	case EventSourceProcurement:
		return "Material"
	default:
		return ""
	}
}
