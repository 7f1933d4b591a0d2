package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// linkEquipmentQuery attaches equipment to the group of the process it is installed at
const linkEquipmentQuery = "MATCH (g:ProcessGroup), (p:Process), (e:Equipment) " +
	"WHERE p.group = g.code AND e.process = p.code MERGE (g)-[:HAS_EQUIPMENT]->(e)"

// StructureBuilder mirrors reference data into the structural topology
type StructureBuilder struct {
	client      graph.Client
	source      ReferenceSource
	structure   config.StructureConfig
	variance    config.VarianceConfig
	concurrency int
	logger      *logging.Logger
}

// NewStructureBuilder creates a structural graph builder
func NewStructureBuilder(client graph.Client, source ReferenceSource, cfg *config.Config) *StructureBuilder {
	return &StructureBuilder{
		client:      client,
		source:      source,
		structure:   cfg.Structure,
		variance:    cfg.Variance,
		concurrency: cfg.Graph.WriteConcurrency,
		logger:      logging.GetLogger("graph.sync.structure"),
	}
}

// Build upserts every structural node, then merges every structural relationship.
// Rerunning with unchanged reference data leaves the graph unchanged.
func (b *StructureBuilder) Build(ctx context.Context) (*BuildStats, error) {
	start := time.Now()

	ref, err := b.source.LoadReferenceData(ctx, b.variance.MaterialProcess)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	nodes := StructureNodeQueries(ref, b.structure)
	links := StructureLinkQueries(ref, b.structure, b.variance)
	stats := &BuildStats{NodeStatements: len(nodes), LinkStatements: len(links)}

	nodeStats, err := writeAll(ctx, b.client, nodes, b.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert structural nodes: %w", err)
	}
	stats.Stats.Add(nodeStats)

	// links match on nodes, so they run after every node is visible
	linkStats, err := writeAll(ctx, b.client, links, b.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to merge structural relationships: %w", err)
	}
	stats.Stats.Add(linkStats)

	stats.Duration = time.Since(start)
	b.logger.Info("Structure build complete: %d node and %d link statements, %d nodes and %d relationships created in %v",
		stats.NodeStatements, stats.LinkStatements, stats.Stats.NodesCreated, stats.Stats.RelationshipsCreated, stats.Duration)
	return stats, nil
}

// Rebuild drops the graph, re-creates indexes and builds the topology from scratch.
// Monthly variance and event nodes are dropped with it.
func (b *StructureBuilder) Rebuild(ctx context.Context) (*BuildStats, error) {
	b.logger.Warn("Rebuilding graph from scratch")
	if err := b.client.DeleteGraph(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete graph: %w", err)
	}
	if err := b.client.InitializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b.Build(ctx)
}

// StructureNodeQueries returns one MERGE per structural entity
func StructureNodeQueries(ref *models.ReferenceData, cfg config.StructureConfig) []graph.GraphQuery {
	var queries []graph.GraphQuery

	seenGroups := make(map[string]bool)
	for _, p := range ref.Products {
		if p.Group == "" || seenGroups[p.Group] {
			continue
		}
		seenGroups[p.Group] = true
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeProductGroup, p.Group, map[string]interface{}{
			"name": p.Group,
		}))
	}

	for _, p := range ref.Products {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeProduct, p.Code, map[string]interface{}{
			"name":        p.Name,
			"group":       p.Group,
			"processType": p.ProcessType,
			"active":      p.Active,
		}))
	}

	for _, p := range ref.Processes {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeProcess, p.Code, map[string]interface{}{
			"name":            p.Name,
			"processType":     p.ProcessType,
			"group":           p.Group,
			"allocationType":  p.AllocationType,
			"allocationBasis": p.AllocationBasis,
		}))
	}

	for _, g := range ref.ProcessGroups {
		name := cfg.ProcessGroupNames[g.Code]
		if name == "" {
			name = g.Code
		}
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeProcessGroup, g.Code, map[string]interface{}{
			"name":        name,
			"processType": g.ProcessType,
		}))
	}

	for _, e := range ref.Equipment {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeEquipment, e.Code, map[string]interface{}{
			"name":    e.Name,
			"process": e.Process,
			"fab":     e.Fab,
		}))
	}

	for _, m := range ref.Materials {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeMaterial, m.Code, map[string]interface{}{
			"name":         m.Name,
			"materialType": m.MaterialType,
			"processType":  m.ProcessType,
		}))
	}

	for _, c := range ref.CostElements {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeCostElement, c.Code, map[string]interface{}{
			"name":  c.Name,
			"group": c.Group,
		}))
	}

	for _, a := range cfg.AllocationBases {
		queries = append(queries, graph.UpsertNodeQuery(graph.NodeTypeAllocationBasis, a.Code, map[string]interface{}{
			"name": a.Name,
			"unit": a.Unit,
		}))
	}

	return queries
}

// StructureLinkQueries returns the relationship MERGEs. Property-matched
// relationships are set-based; fact-derived ones are one statement per pair.
func StructureLinkQueries(ref *models.ReferenceData, cfg config.StructureConfig, vcfg config.VarianceConfig) []graph.GraphQuery {
	queries := []graph.GraphQuery{
		graph.LinkByPropertyQuery(graph.NodeTypeProductGroup, graph.EdgeTypeContains, graph.NodeTypeProduct, "b.group = a.code"),
		graph.LinkByPropertyQuery(graph.NodeTypeProcess, graph.EdgeTypeHasSubprocess, graph.NodeTypeProcessGroup, "a.group = b.code"),
		{Query: linkEquipmentQuery},
		graph.LinkByPropertyQuery(graph.NodeTypeProcess, graph.EdgeTypeAllocatedBy, graph.NodeTypeAllocationBasis, "a.allocationBasis = b.code"),
	}

	for _, pp := range ref.ProductProcesses {
		queries = append(queries, graph.LinkNodesQuery(
			graph.NodeTypeProduct, pp.Product, graph.EdgeTypeCostAt, graph.NodeTypeProcess, pp.Process, nil))
	}

	for _, pc := range ref.ProcessCostElements {
		queries = append(queries, graph.LinkNodesQuery(
			graph.NodeTypeProcess, pc.Process, graph.EdgeTypeComposedOf, graph.NodeTypeCostElement, pc.CostElement, nil))
	}
	queries = append(queries, graph.LinkNodesQuery(
		graph.NodeTypeProcess, vcfg.MaterialProcess, graph.EdgeTypeComposedOf, graph.NodeTypeCostElement, vcfg.MaterialCostElement, nil))

	for _, line := range ref.MaterialUsage {
		queries = append(queries, graph.LinkNodesQuery(
			graph.NodeTypeProduct, line.Key.Product, graph.EdgeTypeUsesMaterial, graph.NodeTypeMaterial, line.Key.Material,
			map[string]interface{}{
				"stdQty":    line.Quantity,
				"unitPrice": line.UnitPrice,
			}))
	}

	for _, c := range cfg.Consumables {
		queries = append(queries, graph.LinkNodesQuery(
			graph.NodeTypeProcessGroup, c.ProcessGroup, graph.EdgeTypeConsumes, graph.NodeTypeMaterial, c.Material, nil))
	}

	return queries
}
