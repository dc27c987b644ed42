package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/pipeline"
)

func newSubmitCommand(version string) *cobra.Command {
	var showArtifacts bool

	cmd := &cobra.Command{
		Use:   "submit <intent>",
		Short: "Run an intent through the change pipeline",
		Long: `Submit an intent to the pipeline stage chain.

The chain runs the fixed stages in order:
  CircuitCheck -> IntentValidation -> CostGuardrail -> ChangeBuild -> ChangePublish

An open circuit breaker, an unsafe intent or a blown cost budget blocks
the run; remaining stages are skipped. A failing non-gate stage degrades
to its fallback value and the run continues with a warning.`,
		Example: `  # Build and publish a change set
  stackpilot submit "Deploy ECS cluster with RDS and load balancer"

  # Include the generated manifests in the output
  stackpilot submit "Deploy ECS cluster" --show-artifacts`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := strings.Join(args, " ")

			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			outcome, err := app.chain.Run(cmd.Context(), intent)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(outcome)
			}
			printOutcome(outcome, showArtifacts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showArtifacts, "show-artifacts", false, "print generated change artifacts")

	return cmd
}

func printOutcome(outcome *pipeline.Outcome, showArtifacts bool) {
	fmt.Printf("Status:     %s (%s)\n", outcome.Status, outcome.Elapsed.Round(time.Millisecond))
	if outcome.Rationale != "" {
		fmt.Printf("Rationale:  %s\n", outcome.Rationale)
	}
	if outcome.RetryAfter > 0 {
		fmt.Printf("Retry in:   %s\n", outcome.RetryAfter.Round(time.Second))
	}
	if outcome.Cost != nil {
		fmt.Printf("Cost:       $%.2f/month\n", outcome.Cost.MonthlyUSD)
	}
	if outcome.PublishedURL != "" {
		fmt.Printf("Published:  %s\n", outcome.PublishedURL)
	}

	fmt.Println("Stages:")
	for _, stage := range outcome.Stages {
		fmt.Printf("  %-18s %s", stage.Stage, stage.Status)
		if stage.Detail != "" {
			fmt.Printf("  %s", stage.Detail)
		}
		fmt.Println()
	}

	for _, warning := range outcome.Warnings {
		fmt.Printf("Warning:    %s\n", warning)
	}

	if showArtifacts && outcome.Changes != nil {
		for _, artifact := range outcome.Changes.Artifacts {
			fmt.Printf("--- %s ---\n%s\n", artifact.Name, artifact.Content)
		}
	}
}
