package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newContentCmd(opts *rootOptions) *cobra.Command {
	contentCmd := &cobra.Command{Use: "content", Short: "Inspect content items"}

	var status, platform string
	list := &cobra.Command{
		Use:   "list",
		Short: "List content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			items, err := c.ListContent(cmd.Context(), status, platform)
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), items)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPLATFORM\tSTATUS\tVERSION\tOWNER")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", it.ID, it.Platform, it.Status, it.Version, it.OwnerID)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "comma-separated statuses")
	list.Flags().StringVar(&platform, "platform", "", "linkedin, instagram or twitter")
	contentCmd.AddCommand(list)

	contentCmd.AddCommand(&cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			recs, err := c.ContentHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	})
	return contentCmd
}
