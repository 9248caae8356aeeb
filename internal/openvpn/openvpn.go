// Package openvpn drives the OpenVPN road-warrior installer script
// (openvpn-install.sh) that the node relies on.
package openvpn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/sysexec"
)

// ScriptName is the file name the application ships the script under.
const ScriptName = "openvpn-install.sh"

// RemovedMarker is printed by the script once OpenVPN is gone.
const RemovedMarker = "OpenVPN removed!"

// uninstallAnswers selects "Remove OpenVPN" in the script menu, then confirms.
const uninstallAnswers = "3\ny\n"

// Installer obtains and runs openvpn-install.sh.
type Installer struct {
	runner     sysexec.Runner
	client     *http.Client
	logger     *slog.Logger
	scriptURL  string
	scriptPath string
}

// NewInstaller creates an Installer that keeps the script at scriptPath and
// downloads it from scriptURL when the checkout does not ship one.
func NewInstaller(runner sysexec.Runner, client *http.Client, logger *slog.Logger, scriptURL, scriptPath string) *Installer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Installer{
		runner:     runner,
		client:     client,
		logger:     logger,
		scriptURL:  scriptURL,
		scriptPath: scriptPath,
	}
}

// Prepare places the script at the configured script path. A copy bundled in installDir wins;
// otherwise it is downloaded. It reports whether the bundled copy was used.
func (i *Installer) Prepare(ctx context.Context, installDir string) (bool, error) {
	bundled := filepath.Join(installDir, ScriptName)
	if data, err := os.ReadFile(bundled); err == nil {
		i.logger.Info("openvpn.script.bundled", "src", bundled, "dest", i.scriptPath)
		if err := writeScript(i.scriptPath, data); err != nil {
			return false, model.WrapCLIError(model.ExitOpenVPNFailed, "failed to copy "+ScriptName, err)
		}
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, model.WrapCLIError(model.ExitOpenVPNFailed, "failed to read "+bundled, err)
	}

	i.logger.Info("openvpn.script.download", "url", i.scriptURL, "dest", i.scriptPath)
	data, err := i.download(ctx)
	if err != nil {
		return false, model.WrapCLIError(model.ExitOpenVPNFailed, "failed to download "+ScriptName, err)
	}
	if err := writeScript(i.scriptPath, data); err != nil {
		return false, model.WrapCLIError(model.ExitOpenVPNFailed, "failed to save "+ScriptName, err)
	}
	return false, nil
}

// Install runs the script with the terminal attached so the operator can
// answer its questions.
func (i *Installer) Install(ctx context.Context) error {
	_, err := i.runner.Run(ctx, sysexec.Command{
		Name:        "bash",
		Args:        []string{i.scriptPath},
		Interactive: true,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitOpenVPNFailed, "OpenVPN installation failed", err)
	}
	return nil
}

// Uninstall removes OpenVPN by answering the script's menu. The run only
// counts as successful when the script prints RemovedMarker.
func (i *Installer) Uninstall(ctx context.Context) error {
	if _, err := os.Stat(i.scriptPath); err != nil {
		return model.WrapCLIError(model.ExitOpenVPNFailed,
			fmt.Sprintf("%s not found", i.scriptPath), err)
	}

	res, err := i.runner.Run(ctx, sysexec.Command{
		Name:  "bash",
		Args:  []string{i.scriptPath},
		Stdin: strings.NewReader(uninstallAnswers),
	})
	if err != nil {
		return model.WrapCLIError(model.ExitOpenVPNFailed, "OpenVPN removal failed", err)
	}
	if !strings.Contains(res.Stdout, RemovedMarker) {
		return model.NewCLIError(model.ExitOpenVPNFailed,
			fmt.Sprintf("OpenVPN removal did not complete (no %q in script output)", RemovedMarker))
	}
	return nil
}

func (i *Installer) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.scriptURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", i.scriptURL)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", i.scriptURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("get %s: unexpected status %s", i.scriptURL, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", i.scriptURL)
	}
	if len(data) == 0 {
		return nil, errors.Errorf("get %s: empty response", i.scriptURL)
	}
	return data, nil
}

func writeScript(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o755); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o755)
}
