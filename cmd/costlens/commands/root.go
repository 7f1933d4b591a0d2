package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/costlens/internal/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string

	// Overrides applied on top of the config file
	databaseURL string
	graphHost   string
	graphPort   int
	graphName   string
)

var rootCmd = &cobra.Command{
	Use:   "costlens",
	Short: "costlens - manufacturing cost variance decomposition and causal graph",
	Long: `costlens decomposes month-over-month manufacturing cost changes into rate,
quantity, price and usage variances, projects them into a property graph next to
the production structure and source-system events, and links them with causal rules.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLog(logLevelFlags)
	},
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	// Global flags available to all subcommands
	// Supports per-package log levels: --log-level debug --log-level graph.sync=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level graph.sync.rules=debug --log-level snapshot=warn")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "Snapshot database URL (overrides database.url)")
	rootCmd.PersistentFlags().StringVar(&graphHost, "graph-host", "", "FalkorDB host (overrides graph.host)")
	rootCmd.PersistentFlags().IntVar(&graphPort, "graph-port", 0, "FalkorDB port (overrides graph.port)")
	rootCmd.PersistentFlags().StringVar(&graphName, "graph-name", "", "FalkorDB graph name (overrides graph.graphName)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(buildGraphCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(spreadCmd)
	rootCmd.AddCommand(evidenceCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setupLog initializes the logging system with parsed log level flags
// Priority: CLI flags > Environment variables > Initialize default
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}

	// Initialize logging with default level and package-specific overrides
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables
// Priority: CLI flags > Environment variables
//
// CLI format: ["debug"], ["default=info", "graph.sync=debug"], or ["info"]
// Env vars: LOG_LEVEL_GRAPH_SYNC=debug (package name uppercased, dots to underscores)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			// Simple format like "debug" or "info" means default level
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		result[parts[0]] = parts[1]
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_GRAPH_SYNC -> graph.sync
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

// validateLogLevel checks if a level string is valid
func validateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}
