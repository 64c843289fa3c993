// Strata: phase and workstream hierarchy for multi-agent task tracking.
//
// Usage:
//
//	strata serve     # Start MCP server (stdio transport)
//	strata check     # Report schema version and legacy data
//	strata migrate   # Migrate flat tasks into the hierarchy
package main

import (
	"fmt"
	"os"

	"github.com/HendryAvila/strata/internal/cli"
)

var (
	version = ""
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
