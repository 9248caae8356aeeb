package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewUpdateCommand creates the "update" cobra command.
func NewUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update the ov-node checkout and restart the service",
		Long: `Update an installed ov-node.

.env is backed up, the checkout is reset to origin/<branch> (or replaced by
a fresh clone when it is not a git checkout), .env is restored, the
dependencies are reinstalled and the service is restarted.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context())
		},
	}
}

func runUpdate(ctx context.Context) error {
	if err := currentConfig().Validate(); err != nil {
		return err
	}
	if err := requireRoot(); err != nil {
		return err
	}

	res, err := newNode().Update(ctx)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(res)
		return nil
	}
	fmt.Printf("OV-Node updated successfully (%s, %s dependencies)\n", res.Action, res.Dependencies.Source)
	return nil
}
