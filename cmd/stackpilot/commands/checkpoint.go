package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/checkpoint"
)

func newCheckpointCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage state checkpoints",
		Long: `Create, list, restore and expire checkpoints.

A checkpoint captures the current version-control revision and a full
snapshot of the tracked infrastructure state. Rollback restores both.
Checkpoints are append-only: cleanup marks old checkpoints inactive, it
never deletes them.`,
	}

	cmd.AddCommand(newCheckpointCreateCommand(version))
	cmd.AddCommand(newCheckpointListCommand(version))
	cmd.AddCommand(newCheckpointRollbackCommand(version))
	cmd.AddCommand(newCheckpointCleanupCommand(version))

	return cmd
}

func newCheckpointCreateCommand(version string) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Capture a new checkpoint",
		Example: `  stackpilot checkpoint create --description "before ecs upgrade"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			record, err := app.checkpoints.Create(cmd.Context(), description)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(record)
			}
			fmt.Printf("Checkpoint %s created (revision %s, branch %s)\n",
				record.ID, record.VCSRevision, record.VCSBranch)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "checkpoint description")

	return cmd
}

func newCheckpointListCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active checkpoints, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			records, err := app.checkpoints.List(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No active checkpoints.")
				return nil
			}
			for _, record := range records {
				fmt.Printf("%s  %s  %-10s %s\n",
					record.ID,
					record.CreatedAt.Format(time.RFC3339),
					record.VCSRevision,
					record.Description)
			}
			return nil
		},
	}

	return cmd
}

func newCheckpointRollbackCommand(version string) *cobra.Command {
	var (
		id       string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a checkpoint's state and revision",
		Long: `Restore the tracked state and version-control revision captured by an
active checkpoint. Without --id the most recent active checkpoint is
restored.`,
		Example: `  # Roll back to the most recent checkpoint
  stackpilot checkpoint rollback

  # Roll back to a specific checkpoint, verifying the restored state
  stackpilot checkpoint rollback --id <uuid> --validate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			var result *checkpoint.RollbackResult
			if id == "" {
				result, err = app.checkpoints.AutoRollback(cmd.Context(), "manual", nil)
			} else {
				result, err = app.checkpoints.Rollback(cmd.Context(), id, validate)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(result)
			}
			fmt.Printf("Rolled back to checkpoint %s (revision %s, %d resources)\n",
				result.CheckpointID, result.VCSRevision, result.RestoredResources)
			for _, mismatch := range result.ValidationErrors {
				fmt.Printf("Validation: %s\n", mismatch)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "checkpoint to restore (default: most recent)")
	cmd.Flags().BoolVar(&validate, "validate", false, "verify the restored state against the snapshot")

	return cmd
}

func newCheckpointCleanupCommand(version string) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Mark old checkpoints inactive",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer app.Close(cmd.Context())

			if keep <= 0 {
				keep = app.cfg.Checkpoint.Retention
			}
			expired, err := app.checkpoints.Cleanup(cmd.Context(), keep)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]int{"expired": expired, "kept": keep})
			}
			fmt.Printf("Expired %d checkpoints, kept the %d most recent\n", expired, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "checkpoints to keep active (default: configured retention)")

	return cmd
}
