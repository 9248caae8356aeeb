// Package cli: menu.go implements "ovnode-setup menu", the interactive
// front end equivalent to installer.py's text menu.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/primezdev/ovnode-setup/internal/model"
	"github.com/primezdev/ovnode-setup/internal/prompt"
	"github.com/primezdev/ovnode-setup/internal/ui"
)

// NewMenuCommand creates the "menu" cobra command.
func NewMenuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu: install, update or uninstall",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd.Context())
		},
	}
}

// runMenu shows the menu until Exit is chosen. A failed action is reported
// and the menu is shown again.
func runMenu(ctx context.Context) error {
	if !prompt.IsTerminal(os.Stdin) {
		return model.NewCLIError(model.ExitGeneralError,
			"menu requires an interactive terminal; use install, update or uninstall instead")
	}
	if err := requireRoot(); err != nil {
		return err
	}

	pause := prompt.New(os.Stdin, os.Stderr)
	for {
		choice, err := ui.RunMenu(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		VerboseLog("Menu choice: %s", choice)

		var actionErr error
		switch choice {
		case ui.ChoiceInstall:
			actionErr = runInstall(ctx)
		case ui.ChoiceUpdate:
			actionErr = runUpdate(ctx)
		case ui.ChoiceUninstall:
			actionErr = runUninstall(ctx, false)
		default:
			fmt.Println("Exiting...")
			return nil
		}

		if actionErr != nil {
			if errors.Is(actionErr, context.Canceled) {
				return actionErr
			}
			var cliErr *model.CLIError
			if errors.As(actionErr, &cliErr) {
				printError(cliErr.Message, cliErr.Err)
			} else {
				printError(actionErr.Error(), nil)
			}
		}
		pause.Pause("Press Enter to return to the menu...")
	}
}
