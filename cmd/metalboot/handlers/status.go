package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/provisioning/imaging"
	"github.com/imamik/metalboot/internal/util/naming"
)

var (
	// newProber creates the liveness prober used by status.
	newProber = func(cfg *config.Config) provisioning.Prober {
		return probe.New(cfg.Talos.Port, cfg.Timeouts.ProbeDial, cfg.Timeouts.ProbePing)
	}

	// newWorkflowAPI connects to the workflow engine.
	newWorkflowAPI = func(cfg *config.Config) (provisioning.WorkflowAPI, error) {
		restCfg, err := tinkerbell.RESTConfig(cfg.Workflow.Kubeconfig)
		if err != nil {
			return nil, err
		}
		c, err := tinkerbell.NewClient(restCfg)
		if err != nil {
			return nil, err
		}
		return tinkerbell.NewEngine(c, cfg.Workflow.Namespace), nil
	}
)

// Status probes every node once and prints the state of its workflows.
// The workflow engine being unreachable is reported, not returned.
func Status(ctx context.Context, configPath string, w io.Writer) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	registry, err := inventory.FromConfig(cfg)
	if err != nil {
		return err
	}

	snapshot := newProber(cfg).ProbeAll(ctx, registry.Nodes())
	renderNodes(w, snapshot)

	api, err := newWorkflowAPI(cfg)
	if err != nil {
		fmt.Fprintf(w, "\nworkflow engine unavailable: %v\n", err)
		return nil
	}

	var names []string
	for _, n := range registry.Nodes() {
		names = append(names,
			naming.InstallWorkflow(cfg.ClusterName, n.Name),
			naming.RebootWorkflow(cfg.ClusterName, n.Name),
		)
	}
	states, err := api.ListStates(ctx, names)
	if err != nil {
		fmt.Fprintf(w, "\nworkflow engine unavailable: %v\n", err)
		return nil
	}

	fmt.Fprintln(w)
	imaging.Dump(ctx, w, api, states)
	return nil
}

func renderNodes(w io.Writer, snapshot probe.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NODE", "ROLE", "MAC", "ADDRESS", "STATUS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, e := range snapshot.Entries {
		table.Append([]string{
			e.Node.Name,
			string(e.Node.Role),
			e.Node.HardwareID(),
			e.Node.Address.String(),
			e.Status.String(),
		})
	}
	table.Render()
}
