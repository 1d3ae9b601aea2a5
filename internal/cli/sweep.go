package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/case-service/internal/app"
	"github.com/spec-kit/case-service/internal/service"
)

// SweepCmd runs one SLA sweep, for external schedulers and manual catch-up.
func SweepCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one SLA sweep and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				now = parsed
			}
			return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				result, err := c.SLA.Sweep(ctx, now)
				if err != nil {
					return err
				}
				printSweep(cmd.OutOrStdout(), now, result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate deadlines at this RFC3339 time instead of now")
	return cmd
}

func printSweep(w io.Writer, now time.Time, r service.SweepResult) {
	fmt.Fprintf(w, "SLA sweep at %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  %s urgent: %d found, %d alerted, %d skipped\n",
		warnMark("!"), r.UrgentTotal, r.UrgentAlerted, r.UrgentSkipped)
	for _, c := range r.Urgent {
		fmt.Fprintf(w, "      %s  %s\n", c.CaseNumber, deadlineOf(c.SLADeadline))
	}
	fmt.Fprintf(w, "  %s missed: %d found, %d alerted, %d skipped\n",
		failMark("✗"), r.MissedTotal, r.MissedAlerted, r.MissedSkipped)
	for _, c := range r.Missed {
		fmt.Fprintf(w, "      %s  %s\n", c.CaseNumber, deadlineOf(c.SLADeadline))
	}
}

func deadlineOf(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
