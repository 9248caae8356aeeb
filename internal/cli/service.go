// Package cli: service.go implements "ovnode-setup service", which manages
// the ov-node systemd unit directly.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/primezdev/ovnode-setup/internal/service"
)

// NewServiceCommand creates the "service" command group.
func NewServiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the ov-node systemd unit",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Write the unit file, then enable and start the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := serviceManager(true)
			if err != nil {
				return err
			}
			if err := m.Install(cmd.Context()); err != nil {
				return err
			}
			printServiceResult("installed", m.UnitPath(), "")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Stop and disable the service and delete the unit file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := serviceManager(true)
			if err != nil {
				return err
			}
			if err := m.Remove(cmd.Context()); err != nil {
				return err
			}
			printServiceResult("removed", m.UnitPath(), "")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "restart",
		Short: "Restart the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := serviceManager(true)
			if err != nil {
				return err
			}
			if err := m.Restart(cmd.Context()); err != nil {
				return err
			}
			printServiceResult("restarted", m.UnitPath(), "")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service state (active, inactive, failed, ...)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := serviceManager(false)
			if err != nil {
				return err
			}
			state, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			printServiceResult("status", m.UnitPath(), state)
			return nil
		},
	})

	return cmd
}

// serviceManager builds the unit manager from the loaded configuration.
// Mutating subcommands require root.
func serviceManager(mutating bool) (*service.Manager, error) {
	cfg := currentConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if mutating {
		if err := requireRoot(); err != nil {
			return nil, err
		}
	}
	VerboseLog("Unit %s in %s", cfg.Service.Name, cfg.Service.UnitDir)
	return service.NewManager(newRunner(), service.UnitFromConfig(cfg), cfg.Service.UnitDir), nil
}

func printServiceResult(action, unitPath, state string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"action":   action,
			"unitPath": unitPath,
		}
		if state != "" {
			result["state"] = state
		}
		printJSON(result)
		return
	}
	if state != "" {
		fmt.Println(state)
		return
	}
	fmt.Printf("Service %s (%s)\n", action, unitPath)
}
