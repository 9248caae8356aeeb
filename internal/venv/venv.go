// Package venv provisions the isolated Python runtime of the application.
//
// The virtual environment is created with the system interpreter
// (`python3 -m venv`) and populated with pip: from requirements.txt when
// the checkout has one, otherwise with a fixed fallback package set.
//
// Installing into a venv keeps the application's packages away from the
// distribution's own Python, which recent Debian and Ubuntu releases
// refuse to modify with pip (PEP 668). Every later command (installer.py,
// the systemd unit) runs the interpreter inside the venv, never python3.
package venv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

// DependencySource records where the installed package list came from.
type DependencySource string

const (
	FromRequirements DependencySource = "requirements"
	FromFallback     DependencySource = "fallback"
)

// InstallResult describes a completed dependency installation.
type InstallResult struct {
	// Source is requirements or fallback.
	Source DependencySource `json:"source"`

	// Packages lists the declared distribution names.
	Packages []string `json:"packages"`
}

// Manager creates and populates one virtual environment.
//
// All work goes through a sysexec.Runner, so tests replace the interpreter
// and pip with a Recorder and only the file layout (bin/python) is real.
type Manager struct {
	runner sysexec.Runner
	python string
	dir    string
}

// NewManager creates a Manager.
//
// Parameters:
//   - runner: executes python and pip
//   - python: the system interpreter used for `-m venv` (e.g. /usr/bin/python3)
//   - dir: the virtual environment directory
func NewManager(runner sysexec.Runner, python, dir string) *Manager {
	return &Manager{runner: runner, python: python, dir: dir}
}

// Dir returns the virtual environment directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Python returns the interpreter inside the virtual environment.
func (m *Manager) Python() string {
	return filepath.Join(m.dir, "bin", "python")
}

// Pip returns the pip executable inside the virtual environment.
func (m *Manager) Pip() string {
	return filepath.Join(m.dir, "bin", "pip")
}

// Exists reports whether the venv already has an interpreter.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.Python())
	return err == nil
}

// Create builds the virtual environment unless it already exists.
// It returns true when a new environment was created.
//
// An existing environment is detected by its bin/python and reused as is.
// A reuse-policy bootstrap therefore keeps installed packages, and pip only
// has to reconcile the difference.
func (m *Manager) Create(ctx context.Context) (bool, error) {
	if m.Exists() {
		return false, nil
	}
	_, err := m.runner.Run(ctx, sysexec.Command{
		Name: m.python,
		Args: []string{"-m", "venv", m.dir},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpgradePip upgrades pip inside the environment. The pip bundled with
// older distributions cannot install some current wheels, so this runs
// before every dependency install.
func (m *Manager) UpgradePip(ctx context.Context) error {
	_, err := m.runner.Run(ctx, sysexec.Command{
		Name: m.Pip(),
		Args: []string{"install", "--upgrade", "pip"},
	})
	return err
}

// Install installs the application's Python dependencies.
//
// When requirementsFile exists it is handed to `pip install -r`. Otherwise
// exactly the fallback packages are installed, nothing more.
//
// Parameters:
//   - requirementsFile: absolute path of requirements.txt in the checkout
//   - fallback: packages installed when requirementsFile does not exist
//
// The returned InstallResult names the source used and the declared
// distribution names. A missing file with an empty fallback is an error.
func (m *Manager) Install(ctx context.Context, requirementsFile string, fallback []string) (InstallResult, error) {
	if _, err := os.Stat(requirementsFile); err == nil {
		packages, err := ParseRequirements(requirementsFile)
		if err != nil {
			return InstallResult{}, err
		}
		_, err = m.runner.Run(ctx, sysexec.Command{
			Name: m.Pip(),
			Args: []string{"install", "-r", requirementsFile},
		})
		if err != nil {
			return InstallResult{}, err
		}
		return InstallResult{Source: FromRequirements, Packages: packages}, nil
	} else if !os.IsNotExist(err) {
		return InstallResult{}, fmt.Errorf("failed to inspect %s: %w", requirementsFile, err)
	}

	if len(fallback) == 0 {
		return InstallResult{}, fmt.Errorf("%s not found and no fallback packages configured", requirementsFile)
	}

	_, err := m.runner.Run(ctx, sysexec.Command{
		Name: m.Pip(),
		Args: append([]string{"install"}, fallback...),
	})
	if err != nil {
		return InstallResult{}, err
	}
	return InstallResult{Source: FromFallback, Packages: slices.Clone(fallback)}, nil
}

// maxImportChecks bounds concurrent interpreter launches during Verify.
const maxImportChecks = 4

// MissingModulesError lists the modules the venv interpreter could not import.
type MissingModulesError struct {
	Modules []string
}

func (e *MissingModulesError) Error() string {
	return fmt.Sprintf("cannot import %d module(s): %s", len(e.Modules), strings.Join(e.Modules, ", "))
}

// Verify checks that the venv interpreter can import each package.
//
// Distribution names are mapped to module names with ImportName and each
// module is imported in its own `python -c "import <mod>"` process, at
// most maxImportChecks at a time. Every module is tried (the check does not
// stop at the first miss) and all failures are reported together, sorted,
// in a *MissingModulesError. A cancelled ctx is returned as is.
func (m *Manager) Verify(ctx context.Context, packages []string) error {
	modules := make([]string, 0, len(packages))
	for _, p := range packages {
		if mod := ImportName(p); mod != "" && !slices.Contains(modules, mod) {
			modules = append(modules, mod)
		}
	}

	missing := make([]bool, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxImportChecks)
	for i, mod := range modules {
		g.Go(func() error {
			_, err := m.runner.Run(gctx, sysexec.Command{
				Name: m.Python(),
				Args: []string{"-c", "import " + mod},
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				missing[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var names []string
	for i, miss := range missing {
		if miss {
			names = append(names, modules[i])
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		return &MissingModulesError{Modules: names}
	}
	return nil
}
