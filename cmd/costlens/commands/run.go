package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/moolen/costlens/internal/logging"
	"github.com/moolen/costlens/internal/models"
	"github.com/moolen/costlens/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	runMonth   string
	runSkip    []string
	runRebuild bool
	runPrune   bool
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full monthly pipeline",
	Long: `Run decomposition, structure sync, projection and the causal rules for one
month, in that order. Every stage is idempotent; rerun the command to recover
from a failed run.`,
	Example: `  costlens run --month 202402
  costlens run --month 202402 --skip decompose --rebuild`,
	Run: func(cmd *cobra.Command, args []string) {
		skip, err := parseStages(runSkip)
		HandleError(err, "Invalid --skip")
		opts := pipeline.Skipping(skip...)
		opts.Rebuild = runRebuild
		opts.Prune = runPrune
		runPipeline(opts)
	},
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Compute and store the variance records of a month",
	Run: func(cmd *cobra.Command, args []string) {
		runPipeline(only(pipeline.StageDecompose))
	},
}

var buildGraphCmd = &cobra.Command{
	Use:   "build-graph",
	Short: "Mirror reference data into the structural graph",
	Long: `Merge every structural node and relationship from the snapshot reference
tables. With --rebuild the graph is dropped and its indexes recreated first.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := only(pipeline.StageStructure)
		opts.Rebuild = runRebuild
		runPipeline(opts)
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Write the variance and event nodes of a month into the graph",
	Run: func(cmd *cobra.Command, args []string) {
		opts := only(pipeline.StageProject)
		opts.Prune = runPrune
		runPipeline(opts)
	},
}

var (
	rulesList bool
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Apply the causal rules for a month, or list them",
	Run: func(cmd *cobra.Command, args []string) {
		if rulesList {
			printRules(cmd)
			return
		}
		runPipeline(only(pipeline.StageRules))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, decomposeCmd, buildGraphCmd, projectCmd, rulesCmd} {
		cmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Output format: text, json or yaml")
		if cmd != buildGraphCmd {
			cmd.Flags().StringVar(&runMonth, "month", "", "Target month (YYYYMM)")
		}
	}

	runCmd.Flags().StringSliceVar(&runSkip, "skip", nil,
		"Stages to skip: "+strings.Join(stageNames(), ", "))
	runCmd.Flags().BoolVar(&runRebuild, "rebuild", false, "Drop and rebuild the graph before the structure stage")
	buildGraphCmd.Flags().BoolVar(&runRebuild, "rebuild", false, "Drop the graph and recreate indexes before building")
	runCmd.Flags().BoolVar(&runPrune, "prune", false, "Delete graph nodes of the month that the store no longer holds")
	projectCmd.Flags().BoolVar(&runPrune, "prune", false, "Delete graph nodes of the month that the store no longer holds")
	rulesCmd.Flags().BoolVar(&rulesList, "list", false, "List the registered rules and exit")
}

// only returns options that run a single stage
func only(stage pipeline.Stage) pipeline.Options {
	var skip []pipeline.Stage
	for _, s := range pipeline.Stages {
		if s != stage {
			skip = append(skip, s)
		}
	}
	return pipeline.Skipping(skip...)
}

func stageNames() []string {
	names := make([]string, len(pipeline.Stages))
	for i, s := range pipeline.Stages {
		names[i] = string(s)
	}
	return names
}

// parseStages validates --skip values
func parseStages(values []string) ([]pipeline.Stage, error) {
	known := make(map[string]bool, len(pipeline.Stages))
	for _, name := range stageNames() {
		known[name] = true
	}

	stages := make([]pipeline.Stage, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if !known[v] {
			return nil, fmt.Errorf("unknown stage %q (must be one of: %s)", v, strings.Join(stageNames(), ", "))
		}
		stages = append(stages, pipeline.Stage(v))
	}
	return stages, nil
}

// runPipeline starts the backends, runs the selected stages and pushes metrics
func runPipeline(opts pipeline.Options) {
	logger := logging.GetLogger("costlens")

	month, err := resolveMonth(opts)
	HandleError(err, "Invalid --month")

	ctx, cancel := signalContext()
	defer cancel()

	a, err := startApp(ctx, needs{database: true, graph: true})
	HandleError(err, "Failed to start")
	defer a.stop()

	metrics := pipeline.NewMetrics()
	result, runErr := a.pipeline(metrics).Run(ctx, month, opts)

	if err := metrics.Push(context.Background(), a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job, month); err != nil {
		logger.Warn("%v", err)
	}

	if result != nil {
		if err := writeOutput(rootCmd.OutOrStdout(), runOutput, result, formatResult); err != nil {
			logger.Warn("Failed to write result: %v", err)
		}
	}
	if runErr != nil {
		a.stop()
		HandleError(runErr, "Pipeline failed")
	}
}

// resolveMonth parses --month. A structure-only run needs no month.
func resolveMonth(opts pipeline.Options) (models.Month, error) {
	if runMonth == "" && opts.Skip[pipeline.StageDecompose] && opts.Skip[pipeline.StageProject] && opts.Skip[pipeline.StageRules] {
		return models.Month{}, nil
	}
	return parseMonthArg(runMonth)
}
