package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/case-service/internal/app"
	"github.com/spec-kit/case-service/internal/domain"
)

// OutboxCmd groups operator commands for exhausted deliveries.
func OutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and requeue exhausted outbox entries",
	}
	cmd.AddCommand(outboxExhaustedCmd())
	cmd.AddCommand(outboxRequeueCmd())
	return cmd
}

func outboxExhaustedCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "exhausted",
		Short: "List entries that used up their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				entries, err := c.Outbox.ListExhausted(ctx, page, limit)
				if err != nil {
					return err
				}
				printExhausted(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "entries per page")
	return cmd
}

func outboxRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Reset an exhausted entry so it is delivered again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if err := c.Outbox.Requeue(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s requeued\n", okMark("✓"), args[0])
				return nil
			})
		},
	}
}

func printExhausted(w io.Writer, entries []domain.OutboxEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%s no exhausted entries\n", okMark("✓"))
		return
	}
	for _, e := range entries {
		lastErr := ""
		if e.LastError != nil {
			lastErr = *e.LastError
		}
		fmt.Fprintf(w, "%s %s  %-9s %-20s retries %d/%d  created %s\n      %s\n",
			failMark("✗"), e.ID, e.Channel, e.EventType, e.RetryCount, e.MaxRetries,
			e.CreatedAt.UTC().Format(time.RFC3339), lastErr)
	}
}
