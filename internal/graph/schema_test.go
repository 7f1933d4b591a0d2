package graph

import (
	"testing"

	"github.com/moolen/costlens/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestUpsertNodeQuery(t *testing.T) {
	q := UpsertNodeQuery(NodeTypeProduct, "PRD_A", map[string]interface{}{
		"name":   "Product A",
		"group":  "PG_01",
		"active": true,
	})

	assert.Equal(t,
		"MERGE (n:Product {code: $key}) SET n.active = $p_active, n.group = $p_group, n.name = $p_name",
		q.Query)
	assert.Equal(t, map[string]interface{}{
		"key":      "PRD_A",
		"p_active": true,
		"p_group":  "PG_01",
		"p_name":   "Product A",
	}, q.Parameters)
}

func TestUpsertNodeQueryWithoutProperties(t *testing.T) {
	q := UpsertNodeQuery(NodeTypeCostElement, "CE_MAT", nil)
	assert.Equal(t, "MERGE (n:CostElement {code: $key})", q.Query)
}

func TestUpsertNodeQueryRejectsUnsafeProperty(t *testing.T) {
	assert.Panics(t, func() {
		UpsertNodeQuery(NodeTypeProduct, "PRD_A", map[string]interface{}{"name} DETACH DELETE n //": 1})
	})
}

func TestLinkByPropertyQuery(t *testing.T) {
	q := LinkByPropertyQuery(NodeTypeProductGroup, EdgeTypeContains, NodeTypeProduct, "b.group = a.code")
	assert.Equal(t,
		"MATCH (a:ProductGroup), (b:Product) WHERE b.group = a.code MERGE (a)-[:CONTAINS]->(b)",
		q.Query)
}

func TestLinkNodesQuery(t *testing.T) {
	q := LinkNodesQuery(NodeTypeProduct, "PRD_A", EdgeTypeUsesMaterial, NodeTypeMaterial, "MAT_01",
		map[string]interface{}{"stdQty": 2.5, "unitPrice": 1200.0})

	assert.Equal(t,
		"MATCH (a:Product {code: $from}) MATCH (b:Material {code: $to}) MERGE (a)-[r:USES_MATERIAL]->(b) "+
			"SET r.stdQty = $p_stdQty, r.unitPrice = $p_unitPrice",
		q.Query)
	assert.Equal(t, "PRD_A", q.Parameters["from"])
	assert.Equal(t, 2.5, q.Parameters["p_stdQty"])
}

func TestLinkNodesQueryVarianceEndpoint(t *testing.T) {
	q := LinkNodesQuery(NodeTypeVariance, "V1", EdgeTypeOccursAt, NodeTypeProduct, "PRD_A", nil)
	assert.Equal(t,
		"MATCH (a:Variance {id: $from}) MATCH (b:Product {code: $to}) MERGE (a)-[r:OCCURS_AT]->(b)",
		q.Query)
}

func TestUpsertVarianceQuery(t *testing.T) {
	v := models.Variance{
		ID:            "V202402_PRD_A_FE_01_CE_DEP_RV",
		Month:         models.MustParseMonth("202402"),
		Product:       "PRD_A",
		ProductGroup:  "PG_01",
		Process:       "FE_01",
		CostElement:   "CE_DEP",
		Type:          models.VarianceTypeRate,
		Amount:        4.2,
		Rate:          0.1292,
		PriorAmount:   32.5,
		CurrentAmount: 39.7,
	}

	q := UpsertVarianceQuery(v)

	assert.Contains(t, q.Query, "MERGE (n:Variance {id: $key}) SET ")
	assert.Equal(t, v.ID, q.Parameters["key"])
	assert.Equal(t, "202402", q.Parameters["p_month"])
	assert.Equal(t, int64(202402), q.Parameters["p_period"])
	assert.Equal(t, "RATE_VAR", q.Parameters["p_type"])
	assert.Equal(t, "PRODUCT", q.Parameters["p_level"])
	assert.Equal(t, 4.2, q.Parameters["p_amount"])
}

func TestUpsertEventQuery(t *testing.T) {
	e := models.Event{
		ID:        "MES_202402_EQ_ETCH_01_UTIL",
		Month:     models.MustParseMonth("202402"),
		Source:    models.EventSourceEquipmentMetric,
		Type:      "UTIL_CHG",
		TargetRef: "EQ_ETCH_01",
	}

	q := UpsertEventQuery(e)

	assert.Contains(t, q.Query, "MERGE (n:Event {id: $key})")
	assert.Equal(t, "EQUIPMENT_METRIC", q.Parameters["p_source"])
	assert.Equal(t, "EQ_ETCH_01", q.Parameters["p_targetRef"])
}

func TestUpsertRuleEdgeQuery(t *testing.T) {
	q := UpsertRuleEdgeQuery(RuleEdge{
		Type:       EdgeTypeEvidencedBy,
		FromLabel:  NodeTypeVariance,
		FromID:     "V1",
		ToLabel:    NodeTypeEvent,
		ToID:       "E1",
		RuleID:     "RULE_03",
		Properties: map[string]interface{}{"confidence": 0.9},
	})

	assert.Equal(t,
		"MATCH (a:Variance {id: $from}) MATCH (b:Event {id: $to}) "+
			"MERGE (a)-[r:EVIDENCED_BY {ruleId: $ruleId}]->(b) SET r.confidence = $p_confidence",
		q.Query)
	assert.Equal(t, map[string]interface{}{
		"from":         "V1",
		"to":           "E1",
		"ruleId":       "RULE_03",
		"p_confidence": 0.9,
	}, q.Parameters)
	assert.NotContains(t, q.Query, "datetime()", "merge key must not contain volatile values")
}
