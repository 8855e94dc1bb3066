package imaging

import (
	"context"
	"fmt"

	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
	"github.com/imamik/metalboot/internal/util/async"
	"github.com/imamik/metalboot/internal/util/labels"
	"github.com/imamik/metalboot/internal/util/naming"
)

// Template parameter keys.
const (
	ParamDevice       = "device_1"
	ParamMgmtAddress  = "mgmt_address"
	ParamDestDisk     = "dest_disk"
	ParamImageVersion = "image_version"
)

// JobFor builds the workflow of the given kind for a node.
func JobFor(ctx *provisioning.Context, n inventory.Node, kind string) tinkerbell.Job {
	wf := ctx.Config.Workflow
	template := wf.InstallTemplate
	if kind == naming.KindReboot {
		template = wf.RebootTemplate
	}
	return tinkerbell.Job{
		Name:     naming.Workflow(ctx.Config.ClusterName, n.Name, kind),
		Template: template,
		Hardware: naming.Hardware(n.Name),
		Params: map[string]string{
			ParamDevice:       n.HardwareID(),
			ParamMgmtAddress:  wf.ManagementAddress,
			ParamDestDisk:     wf.DiskDevice,
			ParamImageVersion: ctx.Config.Talos.Version,
		},
		Labels: labels.NewLabelBuilder(ctx.Config.ClusterName).
			WithRole(string(n.Role)).
			WithNode(n.Name).
			WithJob(kind).
			Build(),
	}
}

// submitAll submits one job of kind per node and returns the job names in
// node order. A job left finished by an earlier run is deleted first so it
// runs again; Submit alone would keep it. The first error stops the
// remaining submissions.
func submitAll(ctx *provisioning.Context, phase, kind string, nodes []inventory.Node) ([]string, error) {
	names := make([]string, len(nodes))
	jobs := make([]tinkerbell.Job, len(nodes))
	for i, n := range nodes {
		jobs[i] = JobFor(ctx, n, kind)
		names[i] = jobs[i].Name
	}

	err := async.ForEach(ctx, jobs, 0, func(c context.Context, job tinkerbell.Job) error {
		if err := clearFinished(c, ctx, phase, job.Name); err != nil {
			return err
		}
		result, err := ctx.Workflows.Submit(c, job)
		if err != nil {
			provisioning.LogResourceFailed(ctx.Observer, phase, "workflow", job.Name, err)
			return fmt.Errorf("failed to submit %s: %w", job.Name, err)
		}
		provisioning.LogResource(ctx.Observer, phase, "workflow", job.Name, result.String())
		return nil
	})
	return names, err
}

// clearFinished deletes a workflow that already succeeded or failed. A
// lookup error leaves the workflow to Submit, which reports real failures.
func clearFinished(c context.Context, ctx *provisioning.Context, phase, name string) error {
	wf, err := ctx.Workflows.Get(c, name)
	if err != nil {
		return nil
	}
	switch Classify(string(wf.Status.State)) {
	case Completed, Failed:
	default:
		return nil
	}
	if err := ctx.Workflows.Delete(c, name); err != nil {
		return fmt.Errorf("failed to delete finished workflow %s: %w", name, err)
	}
	ctx.Observer.Printf("[%s] Deleted finished workflow %s (%s) to run it again", phase, name, wf.Status.State)
	return nil
}
