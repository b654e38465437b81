package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *Cli) newFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List mutations that need a retry or discard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				records, err := a.status.ListFailed(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list failed mutations: %w", err)
				}
				if err := failedListTmpl.Execute(c.io, records); err != nil {
					return fmt.Errorf("failed to render list: %w", err)
				}
				return nil
			})
		},
	}
}

func (c *Cli) newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Queue a failed mutation again with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				if err := a.status.Retry(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to retry mutation %s: %w", args[0], err)
				}
				c.io.Printf("Mutation %s queued again\n", args[0])
				return nil
			})
		},
	}
}

func (c *Cli) newDiscardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <id>",
		Short: "Drop a failed mutation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				if err := a.status.Discard(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to discard mutation %s: %w", args[0], err)
				}
				c.io.Printf("Mutation %s discarded\n", args[0])
				return nil
			})
		},
	}
}
