// Package cli: verify.go implements "ovnode-setup verify", which checks a
// finished bootstrap: the installer entry point exists and the venv
// interpreter can import every declared dependency.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/source"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

// verifyResult is printed by verify on success.
type verifyResult struct {
	InstallDir string   `json:"installDir"`
	Installer  string   `json:"installer"`
	Venv       string   `json:"venv"`
	Modules    []string `json:"modules"`
	Commit     string   `json:"commit,omitempty"`
}

// NewVerifyCommand creates the "verify" cobra command.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that a bootstrap left a working installation",
		Long: `Check the install directory, the installer entry point and the virtual
environment. Every package from requirements.txt (or the fallback set when
there is none) must be importable by the venv interpreter.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runVerify(cmd.Context(), currentConfig(), newRunner())
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				printJSON(res)
				return nil
			}
			fmt.Printf("OK: %s (%d modules importable)\n", res.InstallDir, len(res.Modules))
			if res.Commit != "" {
				fmt.Printf("Commit: %s\n", res.Commit)
			}
			return nil
		},
	}
}

// runVerify performs the checks with runner. Each failure maps to the exit
// code of the bootstrap step that should have produced the missing piece.
func runVerify(ctx context.Context, cfg *config.Config, runner sysexec.Runner) (verifyResult, error) {
	if err := cfg.Validate(); err != nil {
		return verifyResult{}, err
	}

	if _, err := os.Stat(cfg.InstallerPath()); err != nil {
		return verifyResult{}, model.WrapCLIError(model.ExitSourceFetchFailed,
			fmt.Sprintf("installer entry point %s missing", cfg.InstallerPath()), err)
	}

	m := venv.NewManager(runner, cfg.Python, cfg.VenvPath())
	if !m.Exists() {
		return verifyResult{}, model.NewCLIError(model.ExitVenvFailed,
			fmt.Sprintf("virtual environment %s missing", m.Dir()))
	}

	packages := cfg.FallbackPackages
	if _, err := os.Stat(cfg.RequirementsPath()); err == nil {
		parsed, err := venv.ParseRequirements(cfg.RequirementsPath())
		if err != nil {
			return verifyResult{}, model.WrapCLIError(model.ExitDependencyInstallFailed,
				"failed to read requirements", err)
		}
		packages = parsed
	}
	VerboseLog("Checking %d packages with %s", len(packages), m.Python())

	if err := m.Verify(ctx, packages); err != nil {
		var missing *venv.MissingModulesError
		if errors.As(err, &missing) {
			return verifyResult{}, model.WrapCLIError(model.ExitDependencyInstallFailed,
				"dependencies are not importable", err)
		}
		return verifyResult{}, model.WrapCLIError(model.ExitGeneralError, "verification failed", err)
	}

	modules := make([]string, 0, len(packages))
	for _, p := range packages {
		if mod := venv.ImportName(p); mod != "" {
			modules = append(modules, mod)
		}
	}
	return verifyResult{
		InstallDir: cfg.InstallDir,
		Installer:  cfg.InstallerPath(),
		Venv:       m.Dir(),
		Modules:    modules,
		Commit:     checkedOutCommit(ctx, cfg.InstallDir, runner),
	}, nil
}

// checkedOutCommit returns the HEAD of a git checkout, or "" for release
// installs and checkouts git cannot read.
func checkedOutCommit(ctx context.Context, dir string, runner sysexec.Runner) string {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return ""
	}
	head, err := source.NewGitManager(runner).Head(ctx, dir)
	if err != nil {
		VerboseLog("Could not read checked-out commit: %v", err)
		return ""
	}
	return head
}
