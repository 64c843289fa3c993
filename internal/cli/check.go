package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report the schema version and any pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			st, err := app.Migrator.Check()
			if err != nil {
				return fmt.Errorf("checking store: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, title("Migration status"))
			fmt.Fprintln(out, field("Store", app.Store.Path()))
			fmt.Fprintln(out, field("Version", fmt.Sprintf("%s (target %s)", st.CurrentVersion, st.TargetVersion)))
			fmt.Fprintln(out, field("Phases", st.Phases))
			fmt.Fprintln(out, field("Tasks", fmt.Sprintf("%d (%d outside the hierarchy)", st.Tasks, st.Unplaced)))
			if st.Migrating || st.LockHolder != nil {
				holder := "this process"
				if st.LockHolder != nil {
					holder = st.LockHolder.String()
				}
				fmt.Fprintln(out, warnStyle.Render("  A migration is running ("+holder+")"))
			}
			if st.IntegrityError != "" {
				fmt.Fprintln(out, warnStyle.Render("  Integrity problem: "+st.IntegrityError))
			}

			if !st.NeedsMigration {
				fmt.Fprintln(out, okStyle.Render("  Up to date"))
				return nil
			}
			fmt.Fprintln(out, warnStyle.Render("  Migration needed"))
			for _, v := range st.Pending {
				fmt.Fprintf(out, "    - %s %s\n", v.Version, v.Description)
			}
			fmt.Fprintln(out, "  Run `strata migrate` to apply.")
			return nil
		},
	}
}
