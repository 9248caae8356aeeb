package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/primezdev/ovnode-setup/internal/config"
	"github.com/primezdev/ovnode-setup/internal/envfile"
	"github.com/primezdev/ovnode-setup/internal/lock"
	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/openvpn"
	"github.com/primezdev/ovnode-setup/internal/port"
	"github.com/primezdev/ovnode-setup/internal/service"
	"github.com/primezdev/ovnode-setup/internal/source"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
	"github.com/primezdev/ovnode-setup/internal/venv"
)

// DefaultEnvBackup is where update parks .env while the checkout is replaced.
const DefaultEnvBackup = "/tmp/ovnode_env_backup"

// Asker answers the operator questions. *prompt.Prompter implements it.
type Asker interface {
	Ask(question, def string) (string, error)
	Confirm(question string, def bool) (bool, error)
}

// Node operates on one installed application.
type Node struct {
	cfg     *config.Config
	git     *source.GitManager
	venv    *venv.Manager
	service *service.Manager
	openvpn *openvpn.Installer
	ports   *port.Scanner
	asker   Asker
	logger  *slog.Logger
	out     io.Writer

	// EnvBackup is the temporary .env copy used by Update.
	EnvBackup string
}

// New creates a Node. Progress messages are written to out.
func New(cfg *config.Config, runner sysexec.Runner, client *http.Client, asker Asker, logger *slog.Logger, out io.Writer) *Node {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if out == nil {
		out = io.Discard
	}
	return &Node{
		cfg:       cfg,
		git:       source.NewGitManager(runner),
		venv:      venv.NewManager(runner, cfg.Python, cfg.VenvPath()),
		service:   service.NewManager(runner, service.UnitFromConfig(cfg), cfg.Service.UnitDir),
		openvpn:   openvpn.NewInstaller(runner, client, logger, cfg.OpenVPN.ScriptURL, cfg.OpenVPN.ScriptPath),
		ports:     port.NewScanner(),
		asker:     asker,
		logger:    logger,
		out:       out,
		EnvBackup: DefaultEnvBackup,
	}
}

// InstallResult summarizes a completed installation.
type InstallResult struct {
	ServicePort int    `json:"servicePort"`
	APIKey      string `json:"apiKey"`
	EnvWritten  bool   `json:"envWritten"`
	UnitPath    string `json:"unitPath"`
}

// Install sets up OpenVPN, writes .env with the chosen SERVICE_PORT and
// API_KEY, and installs and starts the systemd unit.
func (n *Node) Install(ctx context.Context) (InstallResult, error) {
	if _, err := os.Stat(n.cfg.InstallDir); err != nil {
		return InstallResult{}, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s is not installed; run bootstrap first", n.cfg.InstallDir), err)
	}

	bundled, err := n.openvpn.Prepare(ctx, n.cfg.InstallDir)
	if err != nil {
		return InstallResult{}, err
	}
	if bundled {
		n.say("Using %s from project directory...", openvpn.ScriptName)
	} else {
		n.say("%s not found in project, downloaded it", openvpn.ScriptName)
	}

	n.say("Running OpenVPN installer...")
	if err := n.openvpn.Install(ctx); err != nil {
		return InstallResult{}, err
	}

	servicePort, err := n.askPort()
	if err != nil {
		return InstallResult{}, err
	}
	apiKey, err := n.asker.Ask("OV-Node API key", envfile.NewAPIKey())
	if err != nil {
		return InstallResult{}, err
	}

	res := InstallResult{ServicePort: servicePort, APIKey: apiKey, UnitPath: n.service.UnitPath()}
	err = envfile.Render(n.cfg.EnvExampleFile(), n.cfg.EnvFile(), map[string]string{
		"SERVICE_PORT": strconv.Itoa(servicePort),
		"API_KEY":      apiKey,
	})
	switch {
	case errors.Is(err, envfile.ErrNoTemplate):
		n.say("Warning: .env.example not found")
		n.logger.Warn("node.env.no_template", "path", n.cfg.EnvExampleFile())
	case err != nil:
		return InstallResult{}, model.WrapCLIError(model.ExitGeneralError, "failed to write .env", err)
	default:
		res.EnvWritten = true
	}

	if err := n.service.Install(ctx); err != nil {
		return InstallResult{}, err
	}
	n.logger.Info("node.installed", "port", servicePort, "unit", res.UnitPath)
	return res, nil
}

// askPort asks for the service port. A port already recorded in an existing
// .env is offered as the default so reinstalling keeps the node reachable.
func (n *Node) askPort() (int, error) {
	def := strconv.Itoa(n.cfg.ServicePort)
	if prev := envfile.Lookup(n.cfg.EnvFile(), "SERVICE_PORT"); prev != "" {
		if p, err := strconv.Atoi(prev); err == nil && p >= 1 && p <= 65535 {
			def = prev
		}
	}
	answer, err := n.asker.Ask("OV-Node service port", def)
	if err != nil {
		return 0, err
	}
	p, err := strconv.Atoi(answer)
	if err != nil || p < 1 || p > 65535 {
		return 0, model.NewCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid service port %q (valid: 1-65535)", answer))
	}

	if !n.ports.IsPortAvailable(p, "tcp") {
		if alt, err := n.ports.Suggest(p); err == nil {
			n.say("Warning: port %d is already in use; %d is free", p, alt)
		} else {
			n.say("Warning: port %d is already in use", p)
		}
		n.logger.Warn("node.port.busy", "port", p)
	}
	return p, nil
}

// UpdateResult summarizes a completed update.
type UpdateResult struct {
	Action       string             `json:"action"`
	EnvRestored  bool               `json:"envRestored"`
	Dependencies venv.InstallResult `json:"dependencies"`
}

// Update refreshes the checkout while keeping .env: a git checkout is synced
// to origin, a non-git directory is replaced by a fresh clone, and a
// missing directory is cloned. Dependencies are then reinstalled and the
// service restarted.
func (n *Node) Update(ctx context.Context) (UpdateResult, error) {
	l, err := lock.Acquire(n.cfg.LockPath())
	if err != nil {
		return UpdateResult{}, err
	}
	defer func() { _ = l.Release() }()

	var res UpdateResult
	backedUp, err := envfile.Backup(n.cfg.EnvFile(), n.EnvBackup)
	if err != nil {
		return res, model.WrapCLIError(model.ExitGeneralError, "failed to back up .env", err)
	}

	res.Action, err = n.syncSource(ctx)
	if err != nil {
		if backedUp {
			n.logger.Error("node.update.env_backup_kept", "path", n.EnvBackup)
		}
		return res, model.WrapCLIError(model.ExitSourceFetchFailed, "failed to update source", err)
	}

	if backedUp {
		res.EnvRestored, err = envfile.Restore(n.EnvBackup, n.cfg.EnvFile())
		if err != nil {
			return res, model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to restore .env from %s", n.EnvBackup), err)
		}
	}

	n.say("Creating virtual environment...")
	if _, err := n.venv.Create(ctx); err != nil {
		return res, model.WrapCLIError(model.ExitVenvFailed, "failed to create virtual environment", err)
	}

	n.say("Installing requirements...")
	if err := n.venv.UpgradePip(ctx); err != nil {
		return res, model.WrapCLIError(model.ExitDependencyInstallFailed, "failed to upgrade pip", err)
	}
	res.Dependencies, err = n.venv.Install(ctx, n.cfg.RequirementsPath(), n.cfg.FallbackPackages)
	if err != nil {
		return res, model.WrapCLIError(model.ExitDependencyInstallFailed, "failed to install requirements", err)
	}
	if res.Dependencies.Source == venv.FromFallback {
		n.say("requirements.txt not found, installed basic dependencies")
	}

	if err := n.service.Restart(ctx); err != nil {
		return res, err
	}
	n.logger.Info("node.updated", "action", res.Action, "env_restored", res.EnvRestored)
	return res, nil
}

func (n *Node) syncSource(ctx context.Context) (string, error) {
	dir := n.cfg.InstallDir
	if _, err := os.Stat(dir); err == nil {
		if n.git.IsRepo(dir) {
			n.say("Pulling latest changes from repository...")
			return "synced", n.git.Sync(ctx, dir, n.cfg.Branch)
		}
		n.say("Cloning repository...")
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		return "recloned", n.git.Clone(ctx, n.cfg.RepoURL, n.cfg.Branch, dir)
	} else if !os.IsNotExist(err) {
		return "", err
	}

	n.say("Cloning repository...")
	return "cloned", n.git.Clone(ctx, n.cfg.RepoURL, n.cfg.Branch, dir)
}

// Uninstall removes OpenVPN and the systemd unit. Unless force is set the
// operator must confirm first; declining returns ExitUserCancelled.
// The application directory itself is left in place.
func (n *Node) Uninstall(ctx context.Context, force bool) error {
	if !force {
		ok, err := n.asker.Confirm("Do you want to uninstall OV-Node?", false)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewCLIError(model.ExitUserCancelled, "uninstallation canceled")
		}
	}

	n.say("Please wait...")
	if err := n.openvpn.Uninstall(ctx); err != nil {
		return err
	}
	if err := n.service.Remove(ctx); err != nil {
		return err
	}
	n.logger.Info("node.uninstalled")
	return nil
}

func (n *Node) say(format string, args ...any) {
	fmt.Fprintf(n.out, format+"\n", args...)
}
