package imaging

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"sigs.k8s.io/yaml"

	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
)

// Dump writes a table of the given job states followed by the full status
// of every workflow the engine still knows about.
func Dump(ctx context.Context, w io.Writer, api provisioning.WorkflowAPI, states []tinkerbell.JobState) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"WORKFLOW", "STATE", "BUCKET", "ACTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, s := range states {
		state := s.State
		switch {
		case !s.Found:
			state = "<missing>"
		case state == "":
			state = "<none>"
		}
		action := s.CurrentAction
		if action == "" {
			action = "-"
		}
		table.Append([]string{s.Name, state, string(Classify(s.State)), action})
	}
	table.Render()

	for _, s := range states {
		if !s.Found {
			continue
		}
		wf, err := api.Get(ctx, s.Name)
		if err != nil {
			fmt.Fprintf(w, "\n# %s: %v\n", s.Name, err)
			continue
		}
		out, err := yaml.Marshal(wf.Status)
		if err != nil {
			fmt.Fprintf(w, "\n# %s: failed to render status: %v\n", s.Name, err)
			continue
		}
		fmt.Fprintf(w, "\n# %s\n%s", s.Name, out)
	}
}
