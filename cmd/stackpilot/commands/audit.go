package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand(version string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent routing and pipeline decisions",
		Long: `Show the decision audit log, most recent first. Every routing
decision and pipeline run appends one entry.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			entries, err := app.store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries.")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("%s  %-8s %-10s %-9s %s\n",
					entry.Timestamp.Format(time.RFC3339),
					entry.Phase,
					entry.Actor,
					entry.Status,
					entry.Action)
				if entry.Rationale != "" {
					fmt.Printf("%37s%s\n", "", entry.Rationale)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")

	return cmd
}
