// Package main is the entry point for the ovnode-setup CLI.
//
// This binary prepares a host for ov-node and manages its lifecycle. It
// delegates all functionality to the internal/cli package, which defines
// cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release build. During development, they default to "dev",
// "none", and "unknown" respectively.
package main

import (
	"github.com/primezdev/ovnode-setup/internal/cli"
)

// version, commit, and date are set at build time via ldflags. They provide
// binary identification for the --version flag output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Create the root command with all subcommands registered,
	// then execute it. Execute handles error formatting and exit codes.
	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
