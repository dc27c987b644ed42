package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackpilot",
		Short: "StackPilot - Infrastructure Intent Orchestrator",
		Long: `StackPilot turns free-text infrastructure intents into executed
deployment plans.

Features:
  - Keyword-based capability detection with dependency inference
  - Confidence-gated routing with a TTL decision cache
  - Phase-ordered execution with parallel capability providers
  - Safety policies (Rego), cost guardrails and a circuit breaker
  - Checkpoints with state and version-control rollback`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRouteCommand(version))
	rootCmd.AddCommand(newDetectCommand(version))
	rootCmd.AddCommand(newSubmitCommand(version))
	rootCmd.AddCommand(newCheckpointCommand(version))
	rootCmd.AddCommand(newProvidersCommand(version))
	rootCmd.AddCommand(newAuditCommand(version))

	return rootCmd
}
