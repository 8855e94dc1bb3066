package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/metalboot/cmd/metalboot/handlers"
)

// Provision returns the command that runs a full provisioning pass.
//
// Optional flags:
//
//	--config, -c:     Path to the configuration file (default: auto-detect metalboot.yaml)
//	--mode:           local or job
//	--cni:            keep the default network plugin
//	--cluster-dns:    keep CoreDNS
//	--yes, -y:        reset running nodes without asking
//	--metrics-file:   write run metrics in node-exporter textfile format
//	--image:          container image for job mode
//	--tui:            full-screen dashboard (local mode on a terminal)
func Provision() *cobra.Command {
	opts := handlers.ProvisionOptions{}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Install Talos on every node and bootstrap the cluster",
		Long: `Install Talos on every declared node and bootstrap the cluster.

Nodes already running Talos are reset (after confirmation), the rest are woken
with a wake-on-LAN packet. Every node then network boots into the Tinkerbell
environment, which streams the Talos image to disk. Afterwards the machine
configuration is applied, etcd is bootstrapped on the first control plane and
the run waits until all nodes report Ready.

If no config file is specified, it looks for metalboot.yaml in the current
directory or any parent directory.

With --mode job the run is delegated to a Job in the management cluster, which
is useful when this machine is not on the nodes' network.

Examples:
  # Provision using metalboot.yaml in the current directory
  metalboot provision

  # Provision without the default CNI (install Cilium later)
  metalboot provision --cni=false

  # Run from inside the management cluster
  metalboot provision --mode job --image ghcr.io/imamik/metalboot:v0.4.0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Provision(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: metalboot.yaml)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "local", "Where to run: local or job")
	cmd.Flags().BoolVar(&opts.CNI, "cni", true, "Keep the default network plugin")
	cmd.Flags().BoolVar(&opts.ClusterDNS, "cluster-dns", true, "Keep the cluster DNS service")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Reset nodes running Talos without asking")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics to this file in textfile format")
	cmd.Flags().StringVar(&opts.Image, "image", handlers.DefaultImage, "Container image used in job mode")
	cmd.Flags().StringVar(&opts.ServiceAccount, "service-account", handlers.DefaultServiceAccount, "Service account of the delegated job")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show a full-screen dashboard; resets then need --yes")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "console", "Output format: console or json")
	_ = cmd.Flags().MarkHidden("log-format")

	_ = cmd.RegisterFlagCompletionFunc("mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"local", "job"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
