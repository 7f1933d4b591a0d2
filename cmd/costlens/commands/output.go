package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/moolen/costlens/internal/analysis"
	"github.com/moolen/costlens/internal/graph"
	"github.com/moolen/costlens/internal/graph/sync"
	"github.com/moolen/costlens/internal/models"
	"github.com/moolen/costlens/internal/pipeline"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// writeOutput renders v as json, yaml or with the text formatter
func writeOutput[T any](w io.Writer, format string, v T, text func(io.Writer, T) error) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text", "":
		return text(w, v)
	default:
		return fmt.Errorf("unknown output format %q (must be one of: text, json, yaml)", format)
	}
}

func separator(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", strings.Repeat("=", 80), title, strings.Repeat("=", 80))
}

func formatResult(out io.Writer, r *pipeline.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	separator(w, "PIPELINE RUN")
	fmt.Fprintf(w, "Run ID:\t%s\n", r.RunID)
	fmt.Fprintf(w, "Month:\t%s\n", r.Month)
	fmt.Fprintf(w, "Duration:\t%v\n", r.Duration)

	separator(w, "STAGES")
	fmt.Fprintf(w, "Stage\tStatus\tItems\tDuration\n")
	for _, s := range r.Stages {
		status := pipeline.StatusSuccess
		switch {
		case s.Skipped:
			status = pipeline.StatusSkipped
		case s.Err != nil:
			status = pipeline.StatusFailure
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%v\n", s.Stage, status, s.Items, s.Duration)
	}

	if len(r.Rules) > 0 {
		separator(w, "RULES")
		fmt.Fprintf(w, "Rule\tName\tEdges\tCreated\n")
		for _, rule := range r.Rules {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", rule.RuleID, rule.Name, rule.Edges, rule.Stats.RelationshipsCreated)
		}
	}

	if r.GraphStats != nil {
		separator(w, "GRAPH")
		fmt.Fprintf(w, "Nodes:\t%d\n", r.GraphStats.NodeCount)
		for _, label := range sortedKeys(r.GraphStats.NodesByType) {
			fmt.Fprintf(w, "  %s\t%d\n", label, r.GraphStats.NodesByType[graph.NodeType(label)])
		}
		fmt.Fprintf(w, "Edges:\t%d\n", r.GraphStats.EdgeCount)
		for _, label := range sortedKeys(r.GraphStats.EdgesByType) {
			fmt.Fprintf(w, "  %s\t%d\n", label, r.GraphStats.EdgesByType[graph.EdgeType(label)])
		}
	}
	return w.Flush()
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

func printRules(cmd *cobra.Command) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tName\tDescription\n")
	for _, rule := range sync.DefaultRules() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rule.ID, rule.Name, rule.Description)
	}
	w.Flush()
}

func formatPaths(out io.Writer, paths []analysis.CausalPath) error {
	if len(paths) == 0 {
		fmt.Fprintln(out, "No causal paths found")
		return nil
	}
	for i, p := range paths {
		fmt.Fprintf(out, "%d. %s\n", i+1, renderPath(p))
	}
	return nil
}

func formatProductPaths(out io.Writer, groups []analysis.ProductPaths) error {
	if len(groups) == 0 {
		fmt.Fprintln(out, "No variances found")
		return nil
	}
	for _, g := range groups {
		fmt.Fprintf(out, "%s (%s %.2f)\n", g.Start.ID, g.Start.Type, g.Start.Amount)
		for _, p := range g.Paths {
			fmt.Fprintf(out, "  %s\n", renderPath(p))
		}
	}
	return nil
}

// renderPath prints (Label id) -[REL]-> (Label id) ...
func renderPath(p analysis.CausalPath) string {
	var b strings.Builder
	for i, n := range p.Nodes {
		if i > 0 && i-1 < len(p.Relations) {
			fmt.Fprintf(&b, " -[%s]-> ", p.Relations[i-1])
		}
		fmt.Fprintf(&b, "(%s %s)", n.Label, n.ID)
	}
	return b.String()
}

func formatVariances(out io.Writer, variances []models.Variance) error {
	if len(variances) == 0 {
		fmt.Fprintln(out, "No spread targets found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tProduct\tType\tAmount\tRate\n")
	for _, v := range variances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.1f%%\n", v.ID, v.Product, v.Type, v.Amount, v.Rate*100)
	}
	return w.Flush()
}

func formatEvidence(out io.Writer, pkg *analysis.EvidencePackage) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	t := pkg.Target

	separator(w, "TARGET")
	fmt.Fprintf(w, "ID:\t%s\n", t.ID)
	fmt.Fprintf(w, "Product:\t%s (%s)\n", t.Product, t.ProductGroup)
	fmt.Fprintf(w, "Process:\t%s\n", t.Process)
	fmt.Fprintf(w, "Cost Element:\t%s\n", t.CostElement)
	fmt.Fprintf(w, "Type:\t%s\n", t.Type)
	fmt.Fprintf(w, "Amount:\t%.2f\n", t.Amount)
	fmt.Fprintf(w, "Rate:\t%.1f%%\n", t.Rate*100)

	separator(w, "TIME SERIES")
	if len(pkg.TimeSeries.Points) == 0 {
		fmt.Fprintf(w, "(not enough history)\n")
	} else {
		for _, p := range pkg.TimeSeries.Points {
			fmt.Fprintf(w, "%s\t%.2f\n", p.Month, p.Amount)
		}
		fmt.Fprintf(w, "Mean:\t%.2f\n", pkg.TimeSeries.Mean)
		fmt.Fprintf(w, "Deviation:\t%.2f%%\n", pkg.TimeSeries.DeviationPct)
	}

	separator(w, "EVENTS")
	if len(pkg.Events) == 0 {
		fmt.Fprintf(w, "(none)\n")
	}
	for _, e := range pkg.Events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Source, e.Type, e.TargetRef, e.Description)
	}

	separator(w, "SPREAD")
	if len(pkg.Spread) == 0 {
		fmt.Fprintf(w, "(none)\n")
	}
	for _, v := range pkg.Spread {
		fmt.Fprintf(w, "%s\t%.2f\t%.1f%%\n", v.Product, v.Amount, v.Rate*100)
	}

	separator(w, "SIMILAR CASES")
	if len(pkg.SimilarCases) == 0 {
		fmt.Fprintf(w, "(none)\n")
	}
	for _, c := range pkg.SimilarCases {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\t%.2f\n", c.Variance.Month, c.Variance.Product, c.Variance.Rate*100, c.Pattern, c.Similarity)
	}
	return w.Flush()
}
