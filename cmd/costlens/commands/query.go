package commands

import (
	"errors"
	"fmt"

	"github.com/moolen/costlens/internal/analysis"
	"github.com/spf13/cobra"
)

var (
	queryOutput string
	pathDepth   int
	pathProduct string
	pathMonth   string
)

var pathCmd = &cobra.Command{
	Use:   "path [variance-id]",
	Short: "Show the causal paths of a variance",
	Long: `Follow CAUSED_BY and EVIDENCED_BY edges out of a variance, up to --depth hops
(at most 5). With --product and --month instead of an id, the paths of every
rate, quantity, price and usage variance of that product are shown.`,
	Example: `  costlens path V202402_P001_FE_01_CE_DEP_RV
  costlens path --product P001 --month 202402 -o json`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		if len(args) == 0 && (pathProduct == "" || pathMonth == "") {
			HandleError(errors.New("give a variance id, or --product and --month"), "Invalid arguments")
		}

		a, err := startApp(ctx, needs{graph: true})
		HandleError(err, "Failed to start")
		defer a.stop()

		depth := pathDepth
		if depth == 0 {
			depth = a.cfg.Evidence.PathMaxDepth
		}

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			paths, err := a.analyzer().CausalPaths(ctx, args[0], depth)
			exitOnError(a, err, "Failed to query causal paths")
			exitOnError(a, writeOutput(out, queryOutput, paths, formatPaths), "Failed to write output")
			return
		}

		month, err := parseMonthArg(pathMonth)
		exitOnError(a, err, "Invalid --month")
		groups, err := a.analyzer().ProductCausalPaths(ctx, pathProduct, month, depth)
		exitOnError(a, err, "Failed to query causal paths")
		exitOnError(a, writeOutput(out, queryOutput, groups, formatProductPaths), "Failed to write output")
	},
}

var spreadCmd = &cobra.Command{
	Use:   "spread <variance-id>",
	Short: "Show the variances a rate variance spreads to",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := startApp(ctx, needs{graph: true})
		HandleError(err, "Failed to start")
		defer a.stop()

		targets, err := a.analyzer().Spread(ctx, args[0])
		exitOnError(a, err, "Failed to query spread")
		exitOnError(a, writeOutput(cmd.OutOrStdout(), queryOutput, targets, formatVariances), "Failed to write output")
	},
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence <variance-id>",
	Short: "Assemble the evidence package of a variance",
	Long: `Assemble the target variance, its recent cost history, the events reached
through its causal decomposition, its spread targets and its most similar past
cases.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := startApp(ctx, needs{database: true, graph: true})
		HandleError(err, "Failed to start")
		defer a.stop()

		pkg, err := a.analyzer().Evidence(ctx, args[0])
		if errors.Is(err, analysis.ErrVarianceNotFound) {
			exitOnError(a, fmt.Errorf("no variance with id %q", args[0]), "Not found")
		}
		exitOnError(a, err, "Failed to assemble evidence")
		exitOnError(a, writeOutput(cmd.OutOrStdout(), queryOutput, pkg, formatEvidence), "Failed to write output")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{pathCmd, spreadCmd, evidenceCmd} {
		cmd.Flags().StringVarP(&queryOutput, "output", "o", "text", "Output format: text, json or yaml")
	}
	pathCmd.Flags().IntVar(&pathDepth, "depth", 0, "Maximum path length, 1 to 5 (default from evidence.pathMaxDepth)")
	pathCmd.Flags().StringVar(&pathProduct, "product", "", "Product code, used with --month")
	pathCmd.Flags().StringVar(&pathMonth, "month", "", "Month (YYYYMM), used with --product")
}

// exitOnError stops the backends before HandleError exits the process
func exitOnError(a *app, err error, msg string) {
	if err != nil {
		a.stop()
		HandleError(err, msg)
	}
}
