package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/strata/internal/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.config()
				if err != nil {
					return err
				}
				values := config.Values(cfg)
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, title("Configuration"))
				for _, k := range config.Keys() {
					fmt.Fprintln(out, field(k, values[k]))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one key and save config.yaml",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.config()
				if err != nil {
					return err
				}
				if err := config.Set(&cfg, args[0], args[1]); err != nil {
					return err
				}
				if err := config.Save(cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write config.yaml with the defaults",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Default()
				if opts.dataDir != "" {
					cfg.DataDir = opts.dataDir
				}
				path := filepath.Join(cfg.DataDir, config.FileName)
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists", path)
				}
				if err := config.Save(cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				return nil
			},
		},
	)
	return cmd
}
