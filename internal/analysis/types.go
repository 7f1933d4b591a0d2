// Package analysis answers read-only questions about one variance in the cost
// graph.
//
// Three queries are provided:
//
//   - CausalPaths walks CAUSED_BY and EVIDENCED_BY edges out of a variance,
//     up to five hops, and returns each path as node and relation sequences.
//   - Spread lists the variances a rate variance spreads to over SPREADS_TO.
//   - Evidence assembles an evidence package: the target variance, its cost
//     time series from the snapshot store, the events reachable through its
//     causal decomposition, its spread targets and its most similar past cases.
//
// Nothing in this package writes to the graph.
package analysis

import (
	"errors"

	"github.com/moolen/costlens/internal/models"
)

// ErrVarianceNotFound is returned when no Variance node has the requested id
var ErrVarianceNotFound = errors.New("variance not found")

// PathNode is one node on a causal path
type PathNode struct {
	Label string `json:"label" yaml:"label"`
	ID    string `json:"id" yaml:"id"`
}

// CausalPath is a chain of CAUSED_BY / EVIDENCED_BY edges starting at a variance.
// Relations[i] connects Nodes[i] to Nodes[i+1].
type CausalPath struct {
	Nodes     []PathNode `json:"nodes" yaml:"nodes"`
	Relations []string   `json:"relations" yaml:"relations"`
}

// Length is the number of edges on the path
func (p CausalPath) Length() int {
	return len(p.Relations)
}

// ProductPaths groups the causal paths of one primary variance of a product
type ProductPaths struct {
	Start models.Variance `json:"start" yaml:"start"`
	Paths []CausalPath    `json:"paths" yaml:"paths"`
}

// TimeSeries is the recent cost history of a variance's cost key
type TimeSeries struct {
	Points       []models.CostPoint `json:"points" yaml:"points"`
	Mean         float64            `json:"mean" yaml:"mean"`
	Latest       float64            `json:"latest" yaml:"latest"`
	DeviationPct float64            `json:"deviationPct" yaml:"deviationPct"`
}

// SimilarCase is a past variance linked by SIMILAR_TO
type SimilarCase struct {
	Variance   models.Variance `json:"variance" yaml:"variance"`
	Similarity float64         `json:"similarity" yaml:"similarity"`
	Pattern    string          `json:"pattern" yaml:"pattern"`
}

// EvidencePackage collects everything known about one variance
type EvidencePackage struct {
	Target       models.Variance   `json:"target" yaml:"target"`
	TimeSeries   TimeSeries        `json:"timeSeries" yaml:"timeSeries"`
	Events       []models.Event    `json:"events" yaml:"events"`
	Spread       []models.Variance `json:"spread" yaml:"spread"`
	SimilarCases []SimilarCase     `json:"similarCases" yaml:"similarCases"`
}
