// Package cli: bootstrap.go implements the "ovnode-setup bootstrap" command.
//
// bootstrap prepares a fresh host in one run: it installs OS
// packages, fetches the application, provisions the Python virtual
// environment and dependencies, then hands control to installer.py.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/primezdev/ovnode-setup/internal/bootstrap"
	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/logger"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/ui"
)

// bootstrapFlags holds the command-line flags specific to the bootstrap
// command. Empty strings mean "keep the configured value".
type bootstrapFlags struct {
	source        string
	reinstall     string
	installDir    string
	branch        string
	skipPackages  bool
	skipInstaller bool
}

// NewBootstrapCommand creates the "bootstrap" cobra command.
func NewBootstrapCommand() *cobra.Command {
	flags := &bootstrapFlags{}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Prepare the host and run installer.py",
		Long: `Prepare this host for ov-node.

Steps, in order (the first failure stops the run):
  packages      install python3, venv, pip, git, curl, wget
  source        git clone, or download and extract the release tarball
  venv          create <install>/venv
  dependencies  pip install -r requirements.txt (or the fallback set)
  installer     run installer.py with the venv interpreter

When the install directory already exists, --reinstall decides: "wipe"
removes it and fetches again, "reuse" keeps it as is. The default is wipe
for --source git and reuse for --source release.

With --json, stdout carries only the final JSON document: installer.py
still prompts on the terminal, but its output is written to stderr.
Interrupting the run (Ctrl-C) exits with code 10.

Examples:
  ovnode-setup bootstrap
  ovnode-setup bootstrap --source release
  ovnode-setup bootstrap --reinstall reuse --skip-packages
  ovnode-setup bootstrap --skip-installer --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.source, "source", "", "Source mode: git or release")
	cmd.Flags().StringVar(&flags.reinstall, "reinstall", "", "Existing install dir policy: wipe or reuse")
	cmd.Flags().StringVar(&flags.installDir, "install-dir", "", "Install directory (default /opt/ov-node)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Git branch to clone")
	cmd.Flags().BoolVar(&flags.skipPackages, "skip-packages", false, "Skip OS package installation")
	cmd.Flags().BoolVar(&flags.skipInstaller, "skip-installer", false, "Do not run installer.py")

	return cmd
}

// applyBootstrapFlags overlays the command-line flags on cfg.
func applyBootstrapFlags(cfg *config.Config, flags *bootstrapFlags) error {
	if flags.source != "" {
		mode, err := model.ParseSourceMode(flags.source)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidConfig, "invalid --source", err)
		}
		cfg.Source = mode
	}
	if flags.reinstall != "" {
		policy, err := model.ParseReinstallPolicy(flags.reinstall)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidConfig, "invalid --reinstall", err)
		}
		cfg.Reinstall = policy
	}
	if flags.installDir != "" {
		cfg.InstallDir = flags.installDir
	}
	if flags.branch != "" {
		cfg.Branch = flags.branch
	}
	return cfg.Validate()
}

// runBootstrap is the main logic function for the bootstrap command.
func runBootstrap(ctx context.Context, flags *bootstrapFlags) error {
	cfg := currentConfig()
	if err := applyBootstrapFlags(cfg, flags); err != nil {
		return err
	}
	if err := requireRoot(); err != nil {
		return err
	}

	VerboseLog("Install dir: %s (source %s, reinstall %s)", cfg.InstallDir, cfg.Source, cfg.ReinstallPolicy())

	opts := bootstrap.Options{
		SkipPackages:  flags.skipPackages,
		SkipInstaller: flags.skipInstaller,
	}
	if IsJSONOutput() {
		opts.InstallerStdout = os.Stderr
	}
	b := bootstrap.New(cfg, newRunner(), nil, nil, logger.L(), opts)

	// Text mode streams one line per finished step, since installer.py
	// takes over the terminal in the middle of the run.
	if !IsJSONOutput() {
		theme := ui.DefaultTheme()
		b.OnStep = func(r model.StepReport) {
			fmt.Println(theme.StepLine(r))
		}
	}

	reports, err := b.Run(ctx)
	if IsJSONOutput() && reports != nil {
		printJSON(newStepsResult(cfg, reports, b.Installed, err == nil))
	}
	if err != nil {
		return err
	}

	if !IsJSONOutput() {
		fmt.Printf("ov-node bootstrapped in %s\n", cfg.InstallDir)
	}
	return nil
}
