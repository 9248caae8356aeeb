// Package pkgmgr installs OS packages with the host's package manager.
//
// Only the managers found on the distributions ov-node targets are
// supported: apt-get (Debian/Ubuntu), dnf and yum (RHEL family). Installs
// are always non-interactive so the bootstrap can run unattended.
package pkgmgr

import (
	"context"
	"fmt"

	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

// Kind identifies a supported package manager binary.
type Kind string

const (
	Apt Kind = "apt-get"
	Dnf Kind = "dnf"
	Yum Kind = "yum"
)

// detectOrder is the lookup order; apt-get is the primary target.
var detectOrder = []Kind{Apt, Dnf, Yum}

// Manager installs packages through one package manager binary.
type Manager struct {
	runner sysexec.Runner
	kind   Kind
}

// New creates a Manager for an explicitly chosen package manager.
func New(runner sysexec.Runner, kind Kind) *Manager {
	return &Manager{runner: runner, kind: kind}
}

// Detect returns a Manager for the first supported package manager found in
// PATH. It returns a CLIError with ExitPackageInstallFailed when none is found.
func Detect(runner sysexec.Runner) (*Manager, error) {
	for _, kind := range detectOrder {
		if _, err := sysexec.LookPath(string(kind)); err == nil {
			return New(runner, kind), nil
		}
	}
	return nil, model.NewCLIError(model.ExitPackageInstallFailed,
		"no supported package manager found (tried apt-get, dnf, yum)")
}

// Kind returns the package manager in use.
func (m *Manager) Kind() Kind {
	return m.kind
}

// Install installs the given packages. An empty list is a no-op.
// For apt-get the package index is refreshed first, as a fresh host
// usually has an empty or stale index.
func (m *Manager) Install(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	var cmds []sysexec.Command
	switch m.kind {
	case Apt:
		env := []string{"DEBIAN_FRONTEND=noninteractive"}
		cmds = []sysexec.Command{
			{Name: string(Apt), Args: []string{"update"}, Env: env},
			{Name: string(Apt), Args: append([]string{"install", "-y"}, packages...), Env: env},
		}
	case Dnf, Yum:
		cmds = []sysexec.Command{
			{Name: string(m.kind), Args: append([]string{"install", "-y"}, packages...)},
		}
	default:
		return fmt.Errorf("unsupported package manager %q", m.kind)
	}

	for _, cmd := range cmds {
		if _, err := m.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
