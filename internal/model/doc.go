// Package model defines the domain types and value objects for the
// ovnode-setup CLI.
//
// This package contains pure data structures with no external dependencies:
// source modes, reinstall policies, bootstrap step reports and the exit
// codes returned to the shell. CLIError carries an exit code so that the
// CLI layer can translate a failing step into the process exit status.
package model
