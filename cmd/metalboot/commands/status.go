package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/metalboot/cmd/metalboot/handlers"
)

// Status returns the command that probes nodes and lists workflow states once.
func Status() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show node liveness and workflow states",
		Long: `Probe every declared node once and list the state of its workflows.

Nothing is changed. Use it to see where a failed run stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: metalboot.yaml)")

	return cmd
}
