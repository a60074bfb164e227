package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"frameworks/herald/internal/controls"
	"frameworks/herald/pkg/clients/herald"
)

func newModeCmd(opts *rootOptions) *cobra.Command {
	modeCmd := &cobra.Command{Use: "mode", Short: "Inspect and change the system mode"}
	modeCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current system mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.ModeStatus(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	})

	short := map[string]string{
		"pause":  "Pause scheduling and publishing",
		"resume": "Clear the pause flag",
		"manual": "Switch to manual mode",
		"normal": "Switch to normal mode",
		"crisis": "Switch to crisis mode and cancel every scheduled item",
	}
	for _, op := range herald.ControlOps {
		modeCmd.AddCommand(newModeOpCmd(opts, op, short[op]))
	}
	return modeCmd
}

func newModeOpCmd(opts *rootOptions, op, short string) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   op,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.SetMode(cmd.Context(), op, notes)
			var apiErr *herald.APIError
			partial := errors.As(err, &apiErr) && apiErr.Code == "CANCEL_INCOMPLETE"
			if err != nil && !partial {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput() {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s -> ", modeLabel(res.Previous.Mode, res.Previous.Paused))
				printStatus(out, res.Current)
				if res.Cancellation != nil {
					fmt.Fprintf(out, "cancelled: %d scheduled item(s)\n", len(res.Cancellation.Cancelled))
					for _, f := range res.Cancellation.Failed {
						fmt.Fprintf(out, "%s %s: %s\n", color.RedString("failed"), f.ItemID, f.Error)
					}
				}
			}
			if partial {
				return fmt.Errorf("crisis sweep incomplete: %s", apiErr.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "reason recorded in the audit log")
	return cmd
}

func modeLabel(m controls.Mode, paused bool) string {
	label := string(m)
	if paused {
		label += " (paused)"
	}
	switch m {
	case controls.ModeNormal:
		if paused {
			return color.YellowString(label)
		}
		return color.GreenString(label)
	case controls.ModeManual:
		return color.YellowString(label)
	case controls.ModeCrisis:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	default:
		return label
	}
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func printStatus(w io.Writer, st controls.Status) {
	fmt.Fprintln(w, modeLabel(st.Mode, st.Paused))
	fmt.Fprintf(w, "  can schedule: %s\n", yesNo(st.CanSchedule))
	fmt.Fprintf(w, "  can publish:  %s\n", yesNo(st.CanPublish))
	fmt.Fprintf(w, "  can create:   %s\n", yesNo(st.CanCreate))
	if st.UpdatedBy != "" {
		fmt.Fprintf(w, "  updated by %s at %s\n", st.UpdatedBy, st.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
	}
	if st.Notes != "" {
		fmt.Fprintf(w, "  notes: %s\n", st.Notes)
	}
}
