package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/case-service/internal/app"
)

// DispatchCmd drains the outbox once, or keeps polling with --follow.
func DispatchCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver due outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if follow {
					c.Dispatcher.Run(ctx)
					return nil
				}
				result, err := c.Dispatcher.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "claimed %d: %s %d delivered, %s %d failed, %s %d exhausted\n",
					result.Claimed,
					okMark("✓"), result.Completed,
					warnMark("!"), result.Failed,
					failMark("✗"), result.Exhausted)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep polling until interrupted")
	return cmd
}
