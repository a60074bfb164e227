package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/content"
)

func newAnalyticsCmd(opts *rootOptions) *cobra.Command {
	analyticsCmd := &cobra.Command{Use: "analytics", Short: "Workflow reports"}

	var days int
	workflow := &cobra.Command{
		Use:   "workflow",
		Short: "Show lifecycle and review counts for a recent window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			w, err := c.WorkflowAnalytics(cmd.Context(), days)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), w)
			}
			return printWorkflow(cmd.OutOrStdout(), w)
		},
	}
	workflow.Flags().IntVar(&days, "days", analytics.DefaultDays, "days to look back")
	analyticsCmd.AddCommand(workflow)
	return analyticsCmd
}

func printWorkflow(out io.Writer, w analytics.Workflow) error {
	fmt.Fprintf(out, "Period: %s to %s (%d days)\n\n",
		w.Period.Start.Format("2006-01-02"), w.Period.End.Format("2006-01-02"), w.Period.Days)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "STATUS\tITEMS\n")
	for _, st := range content.Statuses {
		fmt.Fprintf(tw, "%s\t%d\n", st, w.Content.StatusDistribution[st])
	}
	fmt.Fprintf(tw, "total\t%d\n\n", w.Content.TotalItems)
	fmt.Fprintf(tw, "PLATFORM\tITEMS\n")
	for _, p := range content.Platforms {
		fmt.Fprintf(tw, "%s\t%d\n", p, w.Content.PlatformDistribution[p])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	a := w.Approvals
	fmt.Fprintf(out, "\nReview requests: %d  approved: %d  rejected: %d  changes requested: %d  pending: %d\n",
		a.TotalRequests, a.Approved, a.Rejected, a.ChangesRequested, a.Pending)
	return nil
}
