package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReferenceSource struct {
	ref             *models.ReferenceData
	err             error
	materialProcess string
}

func (f *fakeReferenceSource) LoadReferenceData(_ context.Context, materialProcess string) (*models.ReferenceData, error) {
	f.materialProcess = materialProcess
	return f.ref, f.err
}

func testReference() *models.ReferenceData {
	return &models.ReferenceData{
		Products: []models.Product{
			{Code: "P001", Name: "DRAM 8Gb", Group: "PG_DRAM", ProcessType: "FE", Active: true},
			{Code: "P002", Name: "DRAM 16Gb", Group: "PG_DRAM", ProcessType: "FE", Active: true},
			{Code: "P100", Name: "NAND 1Tb", Group: "PG_NAND", ProcessType: "FE", Active: false},
		},
		Processes: []models.Process{
			{Code: "FE_01", Name: "Etch", ProcessType: "FE", Group: "ETCH", AllocationType: "ALLOC", AllocationBasis: "ST"},
			{Code: "BE_01", Name: "Package", ProcessType: "BE", AllocationType: "DIRECT"},
		},
		ProcessGroups: []models.ProcessGroupRef{{Code: "ETCH", ProcessType: "FE"}, {Code: "XRAY", ProcessType: "BE"}},
		Equipment:     []models.Equipment{{Code: "EQ_ETCH_01", Name: "Etcher 1", Process: "FE_01", Fab: "FAB1"}},
		Materials:     []models.Material{{Code: "MAT_01", Name: "Substrate"}, {Code: "MAT_G01", Name: "Etch gas"}},
		CostElements:  []models.CostElement{{Code: "CE_DEP", Name: "Depreciation"}, {Code: "CE_MAT", Name: "Material"}},
		ProductProcesses: []models.ProductProcess{
			{Product: "P001", Process: "FE_01"},
			{Product: "P001", Process: "BE_01"},
		},
		ProcessCostElements: []models.ProcessCostElement{{Process: "FE_01", CostElement: "CE_DEP"}},
		MaterialUsage: []models.BOMLine{
			{Key: models.BOMKey{Product: "P001", Material: "MAT_01"}, Quantity: 4, UnitPrice: 2.5},
		},
	}
}

func countLabel(queries []graph.GraphQuery, label graph.NodeType) int {
	n := 0
	for _, q := range queries {
		if strings.HasPrefix(q.Query, "MERGE (n:"+string(label)+" ") {
			n++
		}
	}
	return n
}

func TestStructureNodeQueries(t *testing.T) {
	cfg := config.Default().Structure
	queries := StructureNodeQueries(testReference(), cfg)

	tests := []struct {
		label graph.NodeType
		want  int
	}{
		{graph.NodeTypeProductGroup, 2},
		{graph.NodeTypeProduct, 3},
		{graph.NodeTypeProcess, 2},
		{graph.NodeTypeProcessGroup, 2},
		{graph.NodeTypeEquipment, 1},
		{graph.NodeTypeMaterial, 2},
		{graph.NodeTypeCostElement, 2},
		{graph.NodeTypeAllocationBasis, 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			assert.Equal(t, tt.want, countLabel(queries, tt.label))
		})
	}

	for _, q := range queries {
		if strings.HasPrefix(q.Query, "MERGE (n:ProcessGroup") {
			switch q.Parameters["key"] {
			case "ETCH":
				assert.Equal(t, "Etch", q.Parameters["p_name"])
			case "XRAY":
				assert.Equal(t, "XRAY", q.Parameters["p_name"], "unnamed groups fall back to their code")
			}
		}
	}
}

func TestStructureLinkQueries(t *testing.T) {
	cfg := config.Default()
	queries := StructureLinkQueries(testReference(), cfg.Structure, cfg.Variance)

	var texts []string
	for _, q := range queries {
		texts = append(texts, q.Query)
		assert.Contains(t, q.Query, "MERGE", "every relationship is merged")
		assert.NotContains(t, q.Query, "CREATE")
	}
	joined := strings.Join(texts, "\n")

	assert.Contains(t, joined, "MATCH (a:ProductGroup), (b:Product) WHERE b.group = a.code MERGE (a)-[:CONTAINS]->(b)")
	assert.Contains(t, joined, "MATCH (a:Process), (b:ProcessGroup) WHERE a.group = b.code MERGE (a)-[:HAS_SUBPROCESS]->(b)")
	assert.Contains(t, joined, linkEquipmentQuery)
	assert.Contains(t, joined, "WHERE a.allocationBasis = b.code MERGE (a)-[:ALLOCATED_BY]->(b)")

	count := func(edge graph.EdgeType) int {
		return strings.Count(joined, "[r:"+string(edge)+"]")
	}
	assert.Equal(t, 2, count(graph.EdgeTypeCostAt))
	assert.Equal(t, 2, count(graph.EdgeTypeComposedOf), "pool cost elements plus the material cost element")
	assert.Equal(t, 1, count(graph.EdgeTypeUsesMaterial))
	assert.Equal(t, 2, count(graph.EdgeTypeConsumes))

	for _, q := range queries {
		if strings.Contains(q.Query, "USES_MATERIAL") {
			assert.Equal(t, 4.0, q.Parameters["p_stdQty"])
			assert.Equal(t, 2.5, q.Parameters["p_unitPrice"])
		}
	}
}

func TestStructureBuildIsRepeatable(t *testing.T) {
	cfg := config.Default()
	client := newMockClient()
	source := &fakeReferenceSource{ref: testReference()}
	builder := NewStructureBuilder(client, source, cfg)

	first, err := builder.Build(context.Background())
	require.NoError(t, err)
	firstRun := client.recorded()

	second, err := builder.Build(context.Background())
	require.NoError(t, err)
	secondRun := client.recorded()[len(firstRun):]

	assert.Equal(t, "BE_01", source.materialProcess)
	assert.Equal(t, first.NodeStatements, second.NodeStatements)
	assert.Equal(t, first.LinkStatements, second.LinkStatements)
	assert.Equal(t, firstRun, secondRun, "a rerun issues the same merge statements")
	for _, q := range firstRun {
		assert.True(t, strings.HasPrefix(q.Query, "MERGE") || strings.HasPrefix(q.Query, "MATCH"), q.Query)
	}
}

func TestStructureBuildWritesNodesBeforeLinks(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.WriteConcurrency = 4
	client := newMockClient()
	builder := NewStructureBuilder(client, &fakeReferenceSource{ref: testReference()}, cfg)

	stats, err := builder.Build(context.Background())
	require.NoError(t, err)

	queries := client.recorded()
	require.Len(t, queries, stats.NodeStatements+stats.LinkStatements)
	for i, q := range queries {
		isNode := strings.HasPrefix(q.Query, "MERGE (n:")
		assert.Equal(t, i < stats.NodeStatements, isNode, q.Query)
	}
}

func TestStructureBuildErrors(t *testing.T) {
	t.Run("reference data unavailable", func(t *testing.T) {
		loadErr := errors.New("connection refused")
		builder := NewStructureBuilder(newMockClient(), &fakeReferenceSource{err: loadErr}, config.Default())

		_, err := builder.Build(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, loadErr)
	})

	t.Run("graph unavailable", func(t *testing.T) {
		client := newMockClient()
		client.err = errors.New("graph down")
		builder := NewStructureBuilder(client, &fakeReferenceSource{ref: testReference()}, config.Default())

		_, err := builder.Build(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert structural nodes")
	})
}

func TestStructureRebuild(t *testing.T) {
	client := newMockClient()
	builder := NewStructureBuilder(client, &fakeReferenceSource{ref: testReference()}, config.Default())

	_, err := builder.Rebuild(context.Background())
	require.NoError(t, err)
	assert.True(t, client.deleted)
	assert.True(t, client.initialized)
	assert.NotEmpty(t, client.recorded())
}
