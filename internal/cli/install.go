// Package cli: install.go, update.go and uninstall.go implement the node
// lifecycle commands that installer.py offers from its menu.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/primezdev/ovnode-setup/internal/logger"
	"github.com/primezdev/ovnode-setup/internal/node"
	"github.com/primezdev/ovnode-setup/internal/prompt"
)

// NewInstallCommand creates the "install" cobra command.
func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install OpenVPN, write .env and start the ov-node service",
		Long: `Install ov-node on a bootstrapped host.

Runs openvpn-install.sh (bundled copy, or downloaded), asks for the service
port and API key, writes .env from .env.example and installs the systemd
unit. When stdin is not a terminal the defaults are used (port 9090 and a
random API key).

Examples:
  sudo ovnode-setup install
  sudo ovnode-setup install --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context())
		},
	}
}

// newNode wires a node.Node to the real host.
func newNode() *node.Node {
	cfg := currentConfig()
	return node.New(cfg, newRunner(), nil, prompt.New(os.Stdin, os.Stderr), logger.L(), os.Stderr)
}

func runInstall(ctx context.Context) error {
	if err := currentConfig().Validate(); err != nil {
		return err
	}
	if err := requireRoot(); err != nil {
		return err
	}

	res, err := newNode().Install(ctx)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(res)
		return nil
	}
	fmt.Printf("OV-Node installed: service port %d, API key %s\n", res.ServicePort, res.APIKey)
	VerboseLog("Unit file: %s", res.UnitPath)
	return nil
}
