// Package cli implements the cobra-based CLI commands for ovnode-setup.
//
// Each subcommand (bootstrap, install, update, uninstall, service, verify,
// menu) is defined in its own file within this package. This file defines
// the root command that serves as the parent for all subcommands and
// handles global flags, configuration loading and the run log.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/logger"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, results and errors are printed as structured JSON so that
	// provisioning tools (cloud-init, Ansible) can parse them.
	jsonOutput bool

	// verbose enables [verbose] trace lines on stderr.
	verbose bool

	// configPath points at an optional YAML or JSONC settings file.
	configPath string

	// debug lowers the run log level to debug (one record per command).
	debug bool

	// skipRootCheck disables the euid check. Hidden; used for dry runs in
	// containers where systemd and apt are stubbed.
	skipRootCheck bool
)

// runtimeConfig is the configuration loaded by the root command before any
// subcommand runs.
var runtimeConfig *config.Config

// logCleanup closes the run log opened in PersistentPreRunE.
var logCleanup func() error

// geteuid is a variable so tests can simulate root and non-root users.
var geteuid = unix.Geteuid

// Version, Commit and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action: it only provides
// help text and global flags. Actual functionality is provided by the
// subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ovnode-setup",
		Short: "Bootstrap and manage an ov-node host",
		Long: `ovnode-setup prepares a Linux host for ov-node, the OpenVPN node agent.

The bootstrap command installs OS packages, fetches the application (git
clone or release tarball), creates its Python virtual environment, installs
its dependencies and runs installer.py. The install, update and uninstall
commands manage an already bootstrapped node.

Each failing stage exits with its own status code so wrapping scripts can
tell what went wrong.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// PersistentPreRunE runs before every subcommand: it loads the
		// configuration and opens the run log under its logDir.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	// PersistentFlags are inherited by all subcommands.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (.yaml, .yml, .json, .jsonc)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Write debug records to the run log")
	rootCmd.PersistentFlags().BoolVar(&skipRootCheck, "skip-root-check", false, "Do not require root privileges")
	_ = rootCmd.PersistentFlags().MarkHidden("skip-root-check")

	// Register subcommands. Each subcommand is defined in its own file.
	rootCmd.AddCommand(NewBootstrapCommand())
	rootCmd.AddCommand(NewInstallCommand())
	rootCmd.AddCommand(NewUpdateCommand())
	rootCmd.AddCommand(NewUninstallCommand())
	rootCmd.AddCommand(NewServiceCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewMenuCommand())

	return rootCmd
}

// setup loads the configuration and opens the run log. A log directory
// that cannot be created only disables the file log.
func setup() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	runtimeConfig = cfg

	cleanup, err := logger.Setup(logger.Config{Dir: cfg.LogDir, Debug: debug})
	if err != nil {
		VerboseLog("Run log disabled: %v", err)
		return nil
	}
	logCleanup = cleanup
	VerboseLog("Writing run log to %s", logger.Path())
	logger.L().Info("run.start", "args", os.Args[1:], "version", Version)
	return nil
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// SIGINT and SIGTERM cancel the command context, which stops the running
// host command. CLIError types carry their own exit codes; other errors
// default to exit code 1.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	if err != nil {
		logger.L().Error("run.failed", "error", err.Error(), "exit_code", int(code))
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
		} else {
			printError(err.Error(), nil)
		}
	}
	if logCleanup != nil {
		_ = logCleanup()
	}
	if err != nil {
		os.Exit(int(code))
	}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return model.ExitUserCancelled
	}
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors always go to
// stderr, because stdout is reserved for command results.
func printError(message string, underlying error) {
	fmt.Fprintln(os.Stderr, formatError(message, underlying, jsonOutput))
}

// requireRoot fails with ExitNotRoot unless the process runs as root.
// Every command that writes below /opt, /etc or /root calls it first.
func requireRoot() error {
	if skipRootCheck || geteuid() == 0 {
		return nil
	}
	return model.NewCLIError(model.ExitNotRoot, "this command must be run as root (try sudo)")
}

// currentConfig returns the configuration loaded by the root command,
// falling back to defaults when a subcommand runs without it (tests).
func currentConfig() *config.Config {
	if runtimeConfig == nil {
		runtimeConfig = config.Default()
	}
	return runtimeConfig
}

// newRunner returns the host command runner, logging to the run log.
func newRunner() *sysexec.ExecRunner {
	return sysexec.NewExecRunner(logger.L())
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
// This is used throughout the CLI for debug/trace output that helps
// users understand what operations are being performed.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
