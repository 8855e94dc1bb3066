package tinkerbell

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
)

// Job declares one workflow.
type Job struct {
	Name     string
	Template string
	Hardware string
	Params   map[string]string
	Labels   map[string]string
}

// SubmitResult says what Submit did.
type SubmitResult int

// Submit results.
const (
	Created SubmitResult = iota
	Unchanged
	Replaced
)

func (r SubmitResult) String() string {
	switch r {
	case Created:
		return "created"
	case Unchanged:
		return "unchanged"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// JobState is the observable state of one workflow.
type JobState struct {
	Name          string
	State         string
	CurrentAction string
	Found         bool
}

// HardwareSpec is the netboot declaration of one node.
type HardwareSpec struct {
	AgentID            string
	MAC                string
	Address            string
	Hostname           string
	ImageServerBaseURL string
	Netboot            bool
	Labels             map[string]string
}

// Engine manages workflows and hardware in one namespace.
type Engine struct {
	client    client.Client
	namespace string
}

// NewEngine creates an engine for the given namespace.
func NewEngine(c client.Client, namespace string) *Engine {
	return &Engine{client: c, namespace: namespace}
}

// Namespace returns the namespace the engine works in.
func (e *Engine) Namespace() string {
	return e.namespace
}

// Submit declares a workflow. An existing workflow with the same spec is left
// alone whatever its state; one with a different spec is deleted and
// recreated. Callers that want a finished workflow to run again delete it
// first.
func (e *Engine) Submit(ctx context.Context, job Job) (SubmitResult, error) {
	desired := &v1alpha1.Workflow{
		ObjectMeta: metav1.ObjectMeta{
			Name:      job.Name,
			Namespace: e.namespace,
			Labels:    job.Labels,
		},
		Spec: v1alpha1.WorkflowSpec{
			TemplateRef: job.Template,
			HardwareRef: job.Hardware,
			HardwareMap: job.Params,
		},
	}

	existing := &v1alpha1.Workflow{}
	err := e.client.Get(ctx, client.ObjectKey{Namespace: e.namespace, Name: job.Name}, existing)
	switch {
	case apierrors.IsNotFound(err):
		if err := e.client.Create(ctx, desired); err != nil {
			return Created, fmt.Errorf("failed to create workflow %s: %w", job.Name, err)
		}
		return Created, nil
	case err != nil:
		return Created, fmt.Errorf("failed to get workflow %s: %w", job.Name, err)
	}

	if equality.Semantic.DeepEqual(existing.Spec, desired.Spec) {
		return Unchanged, nil
	}

	if err := e.client.Delete(ctx, existing); client.IgnoreNotFound(err) != nil {
		return Replaced, fmt.Errorf("failed to delete workflow %s: %w", job.Name, err)
	}
	if err := e.client.Create(ctx, desired); err != nil {
		return Replaced, fmt.Errorf("failed to recreate workflow %s: %w", job.Name, err)
	}
	return Replaced, nil
}

// ListStates returns the state of every named workflow, in order. Missing
// workflows are reported with Found false and an empty state.
func (e *Engine) ListStates(ctx context.Context, names []string) ([]JobState, error) {
	out := make([]JobState, 0, len(names))
	for _, name := range names {
		wf := &v1alpha1.Workflow{}
		err := e.client.Get(ctx, client.ObjectKey{Namespace: e.namespace, Name: name}, wf)
		if apierrors.IsNotFound(err) {
			out = append(out, JobState{Name: name})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get workflow %s: %w", name, err)
		}
		out = append(out, JobState{
			Name:          name,
			State:         string(wf.Status.State),
			CurrentAction: wf.Status.CurrentAction,
			Found:         true,
		})
	}
	return out, nil
}

// Get returns the full workflow object.
func (e *Engine) Get(ctx context.Context, name string) (*v1alpha1.Workflow, error) {
	wf := &v1alpha1.Workflow{}
	if err := e.client.Get(ctx, client.ObjectKey{Namespace: e.namespace, Name: name}, wf); err != nil {
		return nil, fmt.Errorf("failed to get workflow %s: %w", name, err)
	}
	return wf, nil
}

// Delete removes a workflow. A missing workflow is not an error.
func (e *Engine) Delete(ctx context.Context, name string) error {
	wf := &v1alpha1.Workflow{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: e.namespace}}
	if err := e.client.Delete(ctx, wf); client.IgnoreNotFound(err) != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", name, err)
	}
	return nil
}

// PatchHardware creates or updates the Hardware object of a node so that
// its single interface matches spec.
func (e *Engine) PatchHardware(ctx context.Context, name string, spec HardwareSpec) error {
	hw := &v1alpha1.Hardware{}
	err := e.client.Get(ctx, client.ObjectKey{Namespace: e.namespace, Name: name}, hw)
	if apierrors.IsNotFound(err) {
		hw = &v1alpha1.Hardware{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: e.namespace, Labels: spec.Labels},
			Spec:       hardwareSpec(spec),
		}
		if err := e.client.Create(ctx, hw); err != nil {
			return fmt.Errorf("failed to create hardware %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get hardware %s: %w", name, err)
	}

	patch := client.MergeFrom(hw.DeepCopy())
	hw.Spec = hardwareSpec(spec)
	if hw.Labels == nil {
		hw.Labels = map[string]string{}
	}
	for k, v := range spec.Labels {
		hw.Labels[k] = v
	}
	if err := e.client.Patch(ctx, hw, patch); err != nil {
		return fmt.Errorf("failed to patch hardware %s: %w", name, err)
	}
	return nil
}

// GetHardware returns the Hardware object of a node.
func (e *Engine) GetHardware(ctx context.Context, name string) (*v1alpha1.Hardware, error) {
	hw := &v1alpha1.Hardware{}
	if err := e.client.Get(ctx, client.ObjectKey{Namespace: e.namespace, Name: name}, hw); err != nil {
		return nil, fmt.Errorf("failed to get hardware %s: %w", name, err)
	}
	return hw, nil
}

func hardwareSpec(spec HardwareSpec) v1alpha1.HardwareSpec {
	iface := v1alpha1.Interface{
		Netboot: &v1alpha1.Netboot{
			AllowPXE:      ptr.To(spec.Netboot),
			AllowWorkflow: ptr.To(spec.Netboot),
		},
		DHCP: &v1alpha1.DHCP{
			MAC:      spec.MAC,
			Hostname: spec.Hostname,
			IP:       &v1alpha1.IP{Address: spec.Address},
		},
	}
	if spec.ImageServerBaseURL != "" {
		iface.Netboot.OSIE = &v1alpha1.OSIE{BaseURL: spec.ImageServerBaseURL}
	}
	return v1alpha1.HardwareSpec{
		AgentID:    spec.AgentID,
		Interfaces: []v1alpha1.Interface{iface},
	}
}
