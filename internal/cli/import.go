package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/hierarchy"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <tasks.json>",
		Short: "Load a flat legacy task list into the store",
		Long: `Read a JSON array of task records and insert them as-is, without
structural checks. Tasks whose id already exists are skipped. Run
'strata migrate' afterwards to place them in the hierarchy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var tasks []hierarchy.Task
			if err := json.Unmarshal(data, &tasks); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.Store.ImportTasks(tasks)
			if err != nil {
				return fmt.Errorf("importing tasks: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d task(s) into %s\n", n, len(tasks), app.Store.Path())
			return nil
		},
	}
}
