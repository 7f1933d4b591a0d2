package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/moolen/costlens/internal/config"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
)

// MaxPathDepth bounds causal path traversal
const MaxPathDepth = 5

// SeriesSource provides cost history for the time series section
type SeriesSource interface {
	CostSeries(ctx context.Context, key models.CostKey, limit int) ([]models.CostPoint, error)
}

// Analyzer runs read queries against the cost graph
type Analyzer struct {
	graphClient graph.Client
	series      SeriesSource
	cfg         config.EvidenceConfig
	logger      *logging.Logger
}

// NewAnalyzer creates a new analyzer. series may be nil, in which case
// evidence packages carry an empty time series.
func NewAnalyzer(graphClient graph.Client, series SeriesSource, cfg config.EvidenceConfig) *Analyzer {
	return &Analyzer{
		graphClient: graphClient,
		series:      series,
		cfg:         cfg,
		logger:      logging.GetLogger("analysis"),
	}
}

// ClampDepth limits a requested path depth to [1, MaxPathDepth]
func ClampDepth(depth int) int {
	if depth < 1 {
		return 1
	}
	if depth > MaxPathDepth {
		return MaxPathDepth
	}
	return depth
}

// causalPathQuery builds the traversal for one start variance. Variable-length
// bounds cannot be parameters, so the depth is formatted in after clamping.
func causalPathQuery(id string, depth int) graph.GraphQuery {
	return graph.GraphQuery{
		Query: fmt.Sprintf(`MATCH path = (start:Variance {id: $id})-[:CAUSED_BY|EVIDENCED_BY*1..%d]->(end)
RETURN [n IN nodes(path) | labels(n)[0]] AS labels,
       [n IN nodes(path) | n.id] AS ids,
       [r IN relationships(path) | type(r)] AS rels
ORDER BY length(path)`, ClampDepth(depth)),
		Parameters: map[string]interface{}{"id": id},
	}
}

// CausalPaths returns every CAUSED_BY / EVIDENCED_BY path out of the variance,
// up to depth hops, shortest first. An unknown id yields no paths.
func (a *Analyzer) CausalPaths(ctx context.Context, varianceID string, depth int) ([]CausalPath, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, causalPathQuery(varianceID, depth))
	if err != nil {
		return nil, fmt.Errorf("failed to query causal paths of %s: %w", varianceID, err)
	}

	paths := make([]CausalPath, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		labels := graph.StringList(row[0])
		ids := graph.StringList(row[1])
		if len(labels) != len(ids) {
			a.logger.Warn("Skipping malformed path row for %s: %d labels, %d ids", varianceID, len(labels), len(ids))
			continue
		}

		path := CausalPath{
			Nodes:     make([]PathNode, len(ids)),
			Relations: graph.StringList(row[2]),
		}
		for i := range ids {
			path.Nodes[i] = PathNode{Label: labels[i], ID: ids[i]}
		}
		paths = append(paths, path)
	}

	sortPaths(paths)
	a.logger.Debug("Found %d causal paths for %s (depth %d)", len(paths), varianceID, ClampDepth(depth))
	return paths, nil
}

// sortPaths orders by length, then by node ids so equal-length paths are stable
func sortPaths(paths []CausalPath) {
	key := func(p CausalPath) string {
		ids := make([]string, len(p.Nodes))
		for i, n := range p.Nodes {
			ids[i] = n.ID
		}
		return strings.Join(ids, "/")
	}
	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].Length() != paths[j].Length() {
			return paths[i].Length() < paths[j].Length()
		}
		return key(paths[i]) < key(paths[j])
	})
}

const primaryVariancesQuery = `MATCH (v:Variance {product: $product, period: $period})
WHERE v.type IN $types
RETURN v
ORDER BY abs(v.amount) DESC, v.id`

// ProductCausalPaths returns the causal paths of every primary variance of a
// product in one month, largest variance first. Primary types are RATE_VAR,
// QTY_VAR, PRICE_VAR and USAGE_VAR.
func (a *Analyzer) ProductCausalPaths(ctx context.Context, product string, month models.Month, depth int) ([]ProductPaths, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, graph.GraphQuery{
		Query: primaryVariancesQuery,
		Parameters: map[string]interface{}{
			"product": product,
			"period":  month.Period(),
			"types":   primaryTypeNames(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query variances of %s in %s: %w", product, month, err)
	}

	starts, err := variancesFromRows(result.Rows, 0)
	if err != nil {
		return nil, err
	}

	out := make([]ProductPaths, 0, len(starts))
	for _, start := range starts {
		paths, err := a.CausalPaths(ctx, start.ID, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductPaths{Start: start, Paths: paths})
	}
	return out, nil
}

func primaryTypeNames() []interface{} {
	types := []models.VarianceType{
		models.VarianceTypeRate,
		models.VarianceTypeQuantity,
		models.VarianceTypePrice,
		models.VarianceTypeUsage,
	}
	names := make([]interface{}, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

const spreadQuery = `MATCH (v:Variance {id: $id})-[:SPREADS_TO]->(t:Variance)
RETURN t
ORDER BY abs(t.amount) DESC, t.id`

// Spread returns the variances reached by one SPREADS_TO hop, largest first
func (a *Analyzer) Spread(ctx context.Context, varianceID string) ([]models.Variance, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, graph.GraphQuery{
		Query:      spreadQuery,
		Parameters: map[string]interface{}{"id": varianceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query spread of %s: %w", varianceID, err)
	}
	return variancesFromRows(result.Rows, 0)
}

// FindVariance returns the variance with the given id or ErrVarianceNotFound
func (a *Analyzer) FindVariance(ctx context.Context, varianceID string) (models.Variance, error) {
	result, err := a.graphClient.ExecuteQuery(ctx, graph.FindVarianceQuery(varianceID))
	if err != nil {
		return models.Variance{}, fmt.Errorf("failed to look up variance %s: %w", varianceID, err)
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) == 0 {
		return models.Variance{}, fmt.Errorf("%w: %s", ErrVarianceNotFound, varianceID)
	}

	return varianceFromValue(result.Rows[0][0])
}

// variancesFromRows parses the Variance node in column col of every row
func variancesFromRows(rows [][]interface{}, col int) ([]models.Variance, error) {
	out := make([]models.Variance, 0, len(rows))
	for _, row := range rows {
		if len(row) <= col {
			continue
		}
		v, err := varianceFromValue(row[col])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func varianceFromValue(value interface{}) (models.Variance, error) {
	props, err := graph.ParseNodeFromResult(value)
	if err != nil {
		return models.Variance{}, fmt.Errorf("failed to parse variance node: %w", err)
	}
	v, err := graph.VarianceFromProperties(props)
	if err != nil {
		return models.Variance{}, fmt.Errorf("failed to parse variance node: %w", err)
	}
	return v, nil
}
