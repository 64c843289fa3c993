package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/phase"
)

func newPhaseCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Inspect and advance phases",
	}

	var deactivate bool
	advance := &cobra.Command{
		Use:   "advance <phase-id>",
		Short: "Mark a fully complete phase as complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Machine.Advance(args[0], phase.AdvanceOptions{
				Actor:            app.Config.AdminID,
				DeactivateAgents: deactivate,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, okStyle.Render("Phase "+res.Report.PhaseID+" complete"))
			if len(res.Deactivated) > 0 {
				fmt.Fprintln(out, field("Deactivated", res.Deactivated))
			}
			if res.Next != nil && !res.NextExists {
				fmt.Fprintln(out, field("Next", res.Next.Title+" (create it with the create_phase tool)"))
			}
			return nil
		},
	}
	advance.Flags().BoolVar(&deactivate, "deactivate-agents", false, "deactivate agents still working in the phase")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status [phase-id]",
			Short: "Show completion per phase and workstream",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer app.Close()

				id := ""
				if len(args) == 1 {
					id = args[0]
				}
				reports, err := app.Machine.Status(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(reports) == 0 {
					fmt.Fprintln(out, "No phases yet. Run `strata migrate` or create the foundation phase.")
					return nil
				}
				for _, r := range reports {
					fmt.Fprintf(out, "%s %s %5.1f%% %s\n", title(r.Title), bar(r.Completion), r.Percent(), r.Status)
					for _, ws := range r.Workstreams {
						fmt.Fprintf(out, "  %-32s %s %d/%d\n", ws.Title, bar(ws.Completion), ws.Completed, ws.Tasks)
					}
					if r.CanAdvance {
						fmt.Fprintln(out, okStyle.Render("  Ready to advance"))
					}
					if len(r.ActiveAgents) > 0 {
						fmt.Fprintln(out, field("Active agents", r.ActiveAgents))
					}
				}
				return nil
			},
		},
		advance,
	)
	return cmd
}
