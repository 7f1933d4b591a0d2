package graph

import (
	"time"
)

// NodeType is a node label in the cost graph
type NodeType string

const (
	// Structural nodes, keyed by code
	NodeTypeProductGroup    NodeType = "ProductGroup"
	NodeTypeProduct         NodeType = "Product"
	NodeTypeProcess         NodeType = "Process"
	NodeTypeProcessGroup    NodeType = "ProcessGroup"
	NodeTypeEquipment       NodeType = "Equipment"
	NodeTypeMaterial        NodeType = "Material"
	NodeTypeCostElement     NodeType = "CostElement"
	NodeTypeAllocationBasis NodeType = "AllocationBasis"

	// Monthly nodes, keyed by id
	NodeTypeVariance NodeType = "Variance"
	NodeTypeEvent    NodeType = "Event"
)

// StructuralNodeTypes lists every label keyed by code
var StructuralNodeTypes = []NodeType{
	NodeTypeProductGroup,
	NodeTypeProduct,
	NodeTypeProcess,
	NodeTypeProcessGroup,
	NodeTypeEquipment,
	NodeTypeMaterial,
	NodeTypeCostElement,
	NodeTypeAllocationBasis,
}

// KeyProperty returns the natural key property of the label
func (t NodeType) KeyProperty() string {
	switch t {
	case NodeTypeVariance, NodeTypeEvent:
		return "id"
	default:
		return "code"
	}
}

// EdgeType is a relationship type in the cost graph
type EdgeType string

const (
	// Structure
	EdgeTypeContains      EdgeType = "CONTAINS"       // ProductGroup -> Product
	EdgeTypeCostAt        EdgeType = "COST_AT"        // Product -> Process
	EdgeTypeHasSubprocess EdgeType = "HAS_SUBPROCESS" // Process -> ProcessGroup
	EdgeTypeHasEquipment  EdgeType = "HAS_EQUIPMENT"  // ProcessGroup -> Equipment
	EdgeTypeComposedOf    EdgeType = "COMPOSED_OF"    // Process -> CostElement
	EdgeTypeAllocatedBy   EdgeType = "ALLOCATED_BY"   // Process -> AllocationBasis
	EdgeTypeUsesMaterial  EdgeType = "USES_MATERIAL"  // Product -> Material
	EdgeTypeConsumes      EdgeType = "CONSUMES"       // ProcessGroup -> Material

	// Position of variances and events
	EdgeTypeOccursAt  EdgeType = "OCCURS_AT"  // Variance -> Product
	EdgeTypeOccursIn  EdgeType = "OCCURS_IN"  // Variance -> Process
	EdgeTypeRelatesTo EdgeType = "RELATES_TO" // Variance -> CostElement
	EdgeTypeInvolves  EdgeType = "INVOLVES"   // Event -> Equipment/Product/Material

	// Produced by causal rules
	EdgeTypeCausedBy    EdgeType = "CAUSED_BY"    // Variance -> Variance
	EdgeTypeEvidencedBy EdgeType = "EVIDENCED_BY" // Variance -> Event
	EdgeTypeSpreadsTo   EdgeType = "SPREADS_TO"   // Variance -> Variance
	EdgeTypeSimilarTo   EdgeType = "SIMILAR_TO"   // Variance -> past Variance
)

// RuleEdge is an edge proposed by a causal rule. Its merge key is
// (From, To, Type, RuleID); Properties are set after the merge.
type RuleEdge struct {
	Type       EdgeType
	FromLabel  NodeType
	FromID     string
	ToLabel    NodeType
	ToID       string
	RuleID     string
	Properties map[string]interface{}
}

// GraphQuery represents a Cypher query with parameters
type GraphQuery struct {
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    int                    `json:"timeout,omitempty"` // milliseconds, 0 = server default
}

// QueryResult represents the result of a graph query
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Stats   QueryStats      `json:"stats"`
}

// QueryStats represents query execution statistics
type QueryStats struct {
	NodesCreated         int           `json:"nodesCreated"`
	NodesDeleted         int           `json:"nodesDeleted"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	RelationshipsDeleted int           `json:"relationshipsDeleted"`
	PropertiesSet        int           `json:"propertiesSet"`
	LabelsAdded          int           `json:"labelsAdded"`
	ExecutionTime        time.Duration `json:"executionTime"`
}

// Add accumulates other into s
func (s *QueryStats) Add(other QueryStats) {
	s.NodesCreated += other.NodesCreated
	s.NodesDeleted += other.NodesDeleted
	s.RelationshipsCreated += other.RelationshipsCreated
	s.RelationshipsDeleted += other.RelationshipsDeleted
	s.PropertiesSet += other.PropertiesSet
	s.LabelsAdded += other.LabelsAdded
	s.ExecutionTime += other.ExecutionTime
}

// GraphStats represents overall graph statistics
type GraphStats struct {
	NodeCount   int              `json:"nodeCount"`
	EdgeCount   int              `json:"edgeCount"`
	NodesByType map[NodeType]int `json:"nodesByType"`
	EdgesByType map[EdgeType]int `json:"edgesByType"`
}
