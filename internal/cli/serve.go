package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the MCP server on stdin/stdout. Logs go to stderr.

When auto_migrate is on and the store holds legacy data, the migration
runs before the server starts accepting calls.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if res, err := app.AutoMigrate(ctx); err != nil {
				// The server still starts; tools report the unmigrated state.
				app.Logger.WithError(err).Error("automatic migration failed")
			} else if res != nil {
				app.Logger.Info("automatic migration done", "run", res.RunID, "backup", res.BackupPath)
			}

			s := server.New(app)
			if err := mcpserver.ServeStdio(s); err != nil {
				return fmt.Errorf("serving stdio: %w", err)
			}
			return nil
		},
	}
}
