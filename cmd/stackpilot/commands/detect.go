package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDetectCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <intent>",
		Short: "Show what an intent resolves to, without executing",
		Long: `Detect capabilities and resolve the deployment plan for an intent
without touching the router cache or the execution engine.`,
		Example: `  stackpilot detect "Deploy ECS cluster with RDS and load balancer"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := strings.Join(args, " ")

			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			detection := app.detector.Detect(intent)

			ids := detection.CapabilityNames()
			inferred := app.detector.InferDependencies(detection.Capabilities)
			descs := app.mapper.Map(append(ids, inferred...))
			phases := app.mapper.DeploymentPhases(descs)

			if jsonOutput {
				return printJSON(map[string]any{
					"detection": detection,
					"inferred":  inferred,
					"phases":    phases,
				})
			}

			if detection.Empty() {
				fmt.Println("No capabilities detected; this intent would take the fallback path.")
				return nil
			}

			fmt.Println("Detected:")
			for _, c := range detection.Capabilities {
				fmt.Printf("  %-12s %.2f  %s\n", c.Name, c.Confidence, strings.Join(c.MatchedKeywords, ", "))
			}
			if len(detection.Patterns) > 0 {
				fmt.Println("Patterns:")
				for _, p := range detection.Patterns {
					fmt.Printf("  %-12s %.2f\n", p.Name, p.Confidence)
				}
			}
			if len(inferred) > 0 {
				fmt.Printf("Inferred:   %s\n", strings.Join(inferred, ", "))
			}
			fmt.Println("Plan:")
			for _, phase := range phases {
				names := make([]string, 0, len(phase.Capabilities))
				for _, c := range phase.Capabilities {
					names = append(names, c.ID)
				}
				fmt.Printf("  %-14s %s\n", phase.Name, strings.Join(names, ", "))
			}
			return nil
		},
	}

	return cmd
}
