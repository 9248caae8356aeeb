// Package service manages the systemd unit that keeps the application
// running after installation.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{ .Description }}
After=network.target

[Service]
User=root
WorkingDirectory={{ .WorkingDir }}
ExecStart={{ .Python }} {{ .Entry }}
Restart=always
RestartSec={{ .RestartSec }}
Environment="PATH={{ .VenvBin }}:/usr/local/bin:/usr/bin:/bin"

[Install]
WantedBy=multi-user.target
`))

// Unit holds the values rendered into the unit file.
type Unit struct {
	Name        string
	Description string
	WorkingDir  string
	Python      string
	Entry       string
	VenvBin     string
	RestartSec  int
}

// UnitFromConfig derives the unit for the configured install.
func UnitFromConfig(cfg *config.Config) Unit {
	restart := cfg.Service.RestartSec
	if restart <= 0 {
		restart = 5
	}
	return Unit{
		Name:        cfg.Service.Name,
		Description: cfg.Service.Description,
		WorkingDir:  cfg.ServiceWorkingDir(),
		Python:      cfg.VenvPython(),
		Entry:       cfg.Service.Entry,
		VenvBin:     filepath.Join(cfg.VenvPath(), "bin"),
		RestartSec:  restart,
	}
}

// Render returns the unit file contents.
func (u Unit) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, u); err != nil {
		return nil, fmt.Errorf("failed to render unit %s: %w", u.Name, err)
	}
	return buf.Bytes(), nil
}

// Manager installs and controls one systemd unit through systemctl.
type Manager struct {
	runner  sysexec.Runner
	unit    Unit
	unitDir string
}

// NewManager creates a Manager writing unit files below unitDir
// (normally /etc/systemd/system).
func NewManager(runner sysexec.Runner, unit Unit, unitDir string) *Manager {
	return &Manager{runner: runner, unit: unit, unitDir: unitDir}
}

// UnitPath returns the path of the unit file.
func (m *Manager) UnitPath() string {
	return filepath.Join(m.unitDir, m.unit.Name+".service")
}

// Install writes the unit file, reloads systemd, then enables and starts
// the service.
func (m *Manager) Install(ctx context.Context) error {
	data, err := m.unit.Render()
	if err != nil {
		return model.WrapCLIError(model.ExitServiceFailed, "failed to render service unit", err)
	}
	if err := os.MkdirAll(m.unitDir, 0o755); err != nil {
		return model.WrapCLIError(model.ExitServiceFailed,
			fmt.Sprintf("failed to create %s", m.unitDir), err)
	}
	if err := os.WriteFile(m.UnitPath(), data, 0o644); err != nil {
		return model.WrapCLIError(model.ExitServiceFailed,
			fmt.Sprintf("failed to write %s", m.UnitPath()), err)
	}

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", m.unit.Name},
		{"start", m.unit.Name},
	} {
		if err := m.systemctl(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// Remove stops and disables the service and deletes its unit file.
// Stop and disable failures are ignored so that a half-installed unit can
// still be cleaned up.
func (m *Manager) Remove(ctx context.Context) error {
	_ = m.systemctl(ctx, "stop", m.unit.Name)
	_ = m.systemctl(ctx, "disable", m.unit.Name)

	if err := os.Remove(m.UnitPath()); err != nil && !os.IsNotExist(err) {
		return model.WrapCLIError(model.ExitServiceFailed,
			fmt.Sprintf("failed to remove %s", m.UnitPath()), err)
	}
	return m.systemctl(ctx, "daemon-reload")
}

// Restart restarts the service.
func (m *Manager) Restart(ctx context.Context) error {
	return m.systemctl(ctx, "restart", m.unit.Name)
}

// Status returns the unit's active state as printed by
// `systemctl is-active` ("active", "inactive", "failed", ...).
// A non-active unit is not an error.
func (m *Manager) Status(ctx context.Context) (string, error) {
	res, err := m.runner.Run(ctx, sysexec.Command{
		Name: "systemctl",
		Args: []string{"is-active", m.unit.Name},
	})
	state := strings.TrimSpace(res.Stdout)
	if err != nil && state == "" {
		return "", model.WrapCLIError(model.ExitServiceFailed,
			fmt.Sprintf("failed to query %s", m.unit.Name), err)
	}
	return state, nil
}

func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	_, err := m.runner.Run(ctx, sysexec.Command{Name: "systemctl", Args: args})
	if err != nil {
		return model.WrapCLIError(model.ExitServiceFailed,
			fmt.Sprintf("systemctl %s failed", strings.Join(args, " ")), err)
	}
	return nil
}
