package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List registered capability providers",
		Long: `List every registered capability descriptor with its deployment
domain, priority, load timeout and current status. Providers load
lazily: a provider is inactive until the first plan that needs it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			descs := app.registry.List()

			if jsonOutput {
				type entry struct {
					ID          string `json:"id"`
					Domain      string `json:"domain"`
					Priority    int    `json:"priority"`
					LoadTimeout string `json:"load_timeout"`
					Status      string `json:"status"`
				}
				entries := make([]entry, 0, len(descs))
				for _, desc := range descs {
					entries = append(entries, entry{
						ID:          desc.ID,
						Domain:      string(desc.Domain),
						Priority:    desc.Priority,
						LoadTimeout: desc.LoadTimeout.String(),
						Status:      providerStatus(app, desc.ID),
					})
				}
				return printJSON(entries)
			}

			fmt.Printf("%-12s %-15s %8s %12s  %s\n", "ID", "DOMAIN", "PRIORITY", "LOAD TIMEOUT", "STATUS")
			for _, desc := range descs {
				fmt.Printf("%-12s %-15s %8d %12s  %s\n",
					desc.ID, desc.Domain, desc.Priority, desc.LoadTimeout,
					providerStatus(app, desc.ID))
			}
			return nil
		},
	}

	return cmd
}

// providerStatus renders a provider's engine status, "inactive" when it
// was never loaded.
func providerStatus(app *app, id string) string {
	if st, ok := app.engine.ProviderStatusOf(id); ok {
		return string(st)
	}
	return "inactive"
}
