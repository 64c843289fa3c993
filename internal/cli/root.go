// Package cli implements the strata command tree.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/config"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/server"
)

var (
	appCommit = "none"
	appDate   = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		server.Version = version
	}
	appCommit = commit
	appDate = date
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dataDir  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "strata",
		Short: "Strata - phase and workstream hierarchy for multi-agent task tracking",
		Long: `Strata organizes the work of many agents into a four-level hierarchy:
phases, workstreams, tasks and subtasks.

It serves the hierarchy over MCP (stdio), and migrates flat legacy task
lists into phases and workstreams with backups, rollback and a version
ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (default ~/.strata, env STRATA_DATA_DIR)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newMigrateCmd(opts),
		newImportCmd(opts),
		newConfigCmd(opts),
		newPhaseCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "strata %s\ncommit: %s\nbuilt:  %s\n", server.Version, appCommit, appDate)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func (o *globalOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.dataDir)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *log.Logger {
	return log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: log.ParseFormat(cfg.LogFormat),
		Output: w,
	})
}

// open loads the configuration and builds the engine. Logs go to the
// command's stderr.
func (o *globalOptions) open(cmd *cobra.Command) (*server.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	app, err := server.Open(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}
	return app, nil
}
