package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/router"
)

func newRouteCommand(version string) *cobra.Command {
	var reqContext map[string]string

	cmd := &cobra.Command{
		Use:   "route <intent>",
		Short: "Route an intent and execute its deployment plan",
		Long: `Route a free-text infrastructure intent.

This command:
  - Detects capabilities and architectural patterns in the intent
  - Resolves the full capability set into ordered deployment phases
  - Scores confidence and either executes the plan or falls back
  - Caches the decision so identical intents are answered instantly`,
		Example: `  # Route and execute an intent
  stackpilot route "Deploy ECS cluster with RDS and load balancer"

  # Attach request context (part of the cache key)
  stackpilot route "Deploy ECS cluster" --context env=prod`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := strings.Join(args, " ")

			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			// A halted run returns both an error and a partial result
			// carrying the rollback outcome; print before failing.
			result, routeErr := app.router.Route(cmd.Context(), intent, reqContext)
			if result == nil {
				return routeErr
			}
			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
				return routeErr
			}
			printRouteResult(result)
			return routeErr
		},
	}

	cmd.Flags().StringToStringVar(&reqContext, "context", nil, "request context key=value pairs")

	return cmd
}

func printRouteResult(result *router.Result) {
	d := result.Decision
	fmt.Printf("Decision:   %s (confidence %.2f, cached %v)\n", d.Status, d.Confidence, result.Cached)
	fmt.Printf("Rationale:  %s\n", d.Rationale)

	if len(d.Detected) > 0 {
		fmt.Println("Detected:")
		for _, c := range d.Detected {
			fmt.Printf("  %-12s %.2f  %s\n", c.Name, c.Confidence, strings.Join(c.MatchedKeywords, ", "))
		}
	}
	if d.Plan != nil {
		fmt.Printf("Estimated:  %s\n", d.EstimatedDuration)
		fmt.Println("Plan:")
		for _, phase := range d.Plan.Phases {
			ids := make([]string, 0, len(phase.Capabilities))
			for _, c := range phase.Capabilities {
				ids = append(ids, c.ID)
			}
			fmt.Printf("  %-14s %s\n", phase.Name, strings.Join(ids, ", "))
		}
	}

	if result.FallbackMessage != "" {
		fmt.Printf("Fallback:   %s\n", result.FallbackMessage)
		return
	}

	if exec := result.Execution; exec != nil {
		fmt.Printf("Execution:  success=%v duration=%s\n", exec.Success, exec.Duration)
		for _, phase := range exec.Phases {
			fmt.Printf("  %-14s success=%v duration=%s\n", phase.Phase, phase.Success, phase.Duration)
			for _, failed := range phase.FailedCapabilities() {
				fmt.Printf("    failed: %s\n", failed)
			}
		}
		if exec.Halted {
			fmt.Printf("Halted at critical phase %s; later phases skipped\n", exec.HaltedPhase)
		}
	}
	if rb := result.Rollback; rb != nil {
		fmt.Printf("Rollback:   checkpoint %s restored (%d resources)\n", rb.CheckpointID, rb.RestoredResources)
	}
}
