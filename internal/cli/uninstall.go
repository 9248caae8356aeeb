package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewUninstallCommand creates the "uninstall" cobra command.
func NewUninstallCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove OpenVPN and the ov-node service",
		Long: `Remove OpenVPN (through openvpn-install.sh) and the ov-node systemd unit.

The install directory is kept. Without --force the removal must be
confirmed interactively.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cmd.Context(), force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runUninstall(ctx context.Context, force bool) error {
	if err := requireRoot(); err != nil {
		return err
	}

	if err := newNode().Uninstall(ctx, force); err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(map[string]interface{}{"action": "uninstalled"})
		return nil
	}
	fmt.Println("OV-Node uninstallation completed successfully!")
	return nil
}
