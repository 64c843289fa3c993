package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/tools"
)

// Replaced in tests.
var (
	stdinIsTerminal = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	confirm = func(question string) (bool, error) {
		var ok bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		))
		if err := form.Run(); err != nil {
			return false, fmt.Errorf("prompt failed: %w", err)
		}
		return ok, nil
	}
)

type migrateOptions struct {
	force      bool
	skipBackup bool
	yes        bool
	dryRun     bool
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	mo := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate flat legacy tasks into phases and workstreams",
		Long: `Group legacy tasks into clusters, classify each cluster into a workstream
and attach everything to the current phase, in one transaction.

The store is backed up first unless --skip-backup is given. With the
interactive setting on, the plan is shown and must be confirmed; pass
--yes to skip the prompt. --force re-runs on a migrated store and only
moves tasks that are still outside the hierarchy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMigrate(ctx, cmd, app.Migrator, app.Config.Interactive, mo)
		},
	}
	cmd.Flags().BoolVar(&mo.force, "force", false, "re-run even when the store is at the current version")
	cmd.Flags().BoolVar(&mo.skipBackup, "skip-backup", false, "do not back up the store first")
	cmd.Flags().BoolVarP(&mo.yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&mo.dryRun, "dry-run", false, "show the plan without writing anything")
	return cmd
}

func runMigrate(ctx context.Context, cmd *cobra.Command, orch *migrate.Orchestrator, interactive bool, mo *migrateOptions) error {
	out := cmd.OutOrStdout()
	run := migrate.RunOptions{Force: mo.force, SkipBackup: mo.skipBackup}

	if mo.dryRun {
		run.DryRun = true
		res, err := orch.Run(ctx, run)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tools.RenderMigration(res))
		return nil
	}

	if interactive && !mo.yes {
		if !stdinIsTerminal() {
			return fmt.Errorf("confirmation required but stdin is not a terminal; pass --yes to migrate")
		}
		preview := run
		preview.DryRun = true
		res, err := orch.Run(ctx, preview)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tools.RenderMigration(res))
		if res.Outcome == migrate.OutcomeNoop {
			return nil
		}
		ok, err := confirm(fmt.Sprintf("Migrate %d task(s) now?", res.Plan.TaskCount()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, warnStyle.Render("Migration cancelled. Nothing was written."))
			return nil
		}
	}

	res, err := orch.Run(ctx, run)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tools.RenderMigration(res))
	return nil
}
