package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"frameworks/herald/internal/audit"
	"frameworks/herald/pkg/clients/herald"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		q     herald.AuditQuery
		since string
	)
	auditCmd := &cobra.Command{Use: "audit", Short: "Query the audit log"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				q.Since = t
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			recs, err := c.QueryAudit(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	list.Flags().StringVar(&q.TargetType, "target-type", "", "content_item or system")
	list.Flags().StringVar(&q.TargetID, "target-id", "", "target id")
	list.Flags().StringVar(&q.ActorID, "actor", "", "actor id")
	list.Flags().StringVar(&q.Action, "action", "", "action, e.g. content.approve")
	list.Flags().StringVar(&since, "since", "", "RFC3339 time or a duration such as 24h")
	list.Flags().IntVar(&q.Limit, "limit", 0, "maximum records (server default 50)")
	auditCmd.AddCommand(list)
	return auditCmd
}

// parseSince accepts an RFC3339 timestamp or a duration counted back from now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}

func printRecords(w io.Writer, recs []audit.Record) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tTARGET\tDETAILS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%s\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.ActorID, r.Action, r.TargetType, r.TargetID, formatDetails(r.Details))
	}
	_ = tw.Flush()
}

func formatDetails(d map[string]any) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, " ")
}
