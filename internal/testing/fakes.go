package testing

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/probe"
	"github.com/imamik/metalboot/internal/provisioning"
)

// FakeProber answers probes from a table keyed by hardware address.
// Unknown nodes are offline.
type FakeProber struct {
	mu     sync.Mutex
	status map[string]probe.Status
	calls  int

	// OnProbeAll runs before every ProbeAll with the 1-based call number.
	OnProbeAll func(call int)
}

// NewFakeProber creates a prober where every node is offline.
func NewFakeProber() *FakeProber {
	return &FakeProber{status: make(map[string]probe.Status)}
}

// Set changes the status of one node.
func (f *FakeProber) Set(n inventory.Node, s probe.Status) {
	f.SetMAC(n.MAC, s)
}

// SetMAC changes the status of the node with the given hardware address.
func (f *FakeProber) SetMAC(mac net.HardwareAddr, s probe.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[strings.ToLower(mac.String())] = s
}

// SetAll changes the status of every given node.
func (f *FakeProber) SetAll(nodes []inventory.Node, s probe.Status) {
	for _, n := range nodes {
		f.Set(n, s)
	}
}

// Calls returns how many ProbeAll calls were made.
func (f *FakeProber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Probe implements provisioning.Prober.
func (f *FakeProber) Probe(_ context.Context, n inventory.Node) probe.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[n.HardwareID()]
}

// ProbeAll implements provisioning.Prober.
func (f *FakeProber) ProbeAll(ctx context.Context, nodes []inventory.Node) probe.Snapshot {
	f.mu.Lock()
	f.calls++
	call, hook := f.calls, f.OnProbeAll
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	entries := make([]probe.Entry, len(nodes))
	for i, n := range nodes {
		entries[i] = probe.Entry{Node: n, Status: f.Probe(ctx, n)}
	}
	return probe.Snapshot{Entries: entries}
}

// FakeWaker records wake signals and optionally brings the node up.
type FakeWaker struct {
	mu    sync.Mutex
	woken []string

	// Prober, when set, marks a woken node as WakeTo.
	Prober *FakeProber
	WakeTo probe.Status
	Err    error
}

// Wake implements provisioning.Waker.
func (f *FakeWaker) Wake(_ context.Context, mac net.HardwareAddr) error {
	f.mu.Lock()
	f.woken = append(f.woken, strings.ToLower(mac.String()))
	f.mu.Unlock()

	if f.Err != nil {
		return f.Err
	}
	if f.Prober != nil {
		f.Prober.SetMAC(mac, f.WakeTo)
	}
	return nil
}

// Woken returns the woken hardware addresses, sorted.
func (f *FakeWaker) Woken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.woken...)
	sort.Strings(out)
	return out
}

// ApplyCall is one recorded ApplyConfig call.
type ApplyCall struct {
	Address  string
	Base     []byte
	Patch    []byte
	Insecure bool
}

// FakeNodeConfig is a provisioning.NodeConfigAPI with overridable behavior.
// A nil func field means success.
type FakeNodeConfig struct {
	mu         sync.Mutex
	applies    []ApplyCall
	bootstraps []string
	resets     []string
	fetches    int

	ApplyConfigFunc      func(ctx context.Context, address string, base, patch []byte, insecure bool) error
	BootstrapFunc        func(ctx context.Context, address string) error
	HealthCheckFunc      func(ctx context.Context, address string) error
	FetchCredentialsFunc func(ctx context.Context, address string, attempt int) ([]byte, error)
	ResetFunc            func(ctx context.Context, address string) error

	Talosconfig []byte
}

// ApplyConfig implements provisioning.NodeConfigAPI.
func (f *FakeNodeConfig) ApplyConfig(ctx context.Context, address string, base, patch []byte, insecure bool) error {
	f.mu.Lock()
	f.applies = append(f.applies, ApplyCall{Address: address, Base: base, Patch: patch, Insecure: insecure})
	f.mu.Unlock()
	if f.ApplyConfigFunc != nil {
		return f.ApplyConfigFunc(ctx, address, base, patch, insecure)
	}
	return nil
}

// Bootstrap implements provisioning.NodeConfigAPI.
func (f *FakeNodeConfig) Bootstrap(ctx context.Context, address string) error {
	f.mu.Lock()
	f.bootstraps = append(f.bootstraps, address)
	f.mu.Unlock()
	if f.BootstrapFunc != nil {
		return f.BootstrapFunc(ctx, address)
	}
	return nil
}

// HealthCheck implements provisioning.NodeConfigAPI.
func (f *FakeNodeConfig) HealthCheck(ctx context.Context, address string) error {
	if f.HealthCheckFunc != nil {
		return f.HealthCheckFunc(ctx, address)
	}
	return nil
}

// FetchCredentials implements provisioning.NodeConfigAPI. The default
// returns a kubeconfig naming the address.
func (f *FakeNodeConfig) FetchCredentials(ctx context.Context, address string) ([]byte, error) {
	f.mu.Lock()
	f.fetches++
	attempt := f.fetches
	f.mu.Unlock()
	if f.FetchCredentialsFunc != nil {
		return f.FetchCredentialsFunc(ctx, address, attempt)
	}
	return Kubeconfig(address), nil
}

// Reset implements provisioning.NodeConfigAPI.
func (f *FakeNodeConfig) Reset(ctx context.Context, address string) error {
	f.mu.Lock()
	f.resets = append(f.resets, address)
	f.mu.Unlock()
	if f.ResetFunc != nil {
		return f.ResetFunc(ctx, address)
	}
	return nil
}

// TalosConfig implements provisioning.NodeConfigAPI.
func (f *FakeNodeConfig) TalosConfig() []byte {
	if f.Talosconfig == nil {
		return []byte(TalosConfigYAML)
	}
	return f.Talosconfig
}

// Applies returns the recorded ApplyConfig calls in call order.
func (f *FakeNodeConfig) Applies() []ApplyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ApplyCall(nil), f.applies...)
}

// Bootstraps returns the addresses Bootstrap was called with.
func (f *FakeNodeConfig) Bootstraps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bootstraps...)
}

// Resets returns the reset addresses, sorted.
func (f *FakeNodeConfig) Resets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.resets...)
	sort.Strings(out)
	return out
}

// Fetches returns how many times credentials were requested.
func (f *FakeNodeConfig) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// Kubeconfig returns a minimal kubeconfig pointing at address.
func Kubeconfig(address string) []byte {
	return []byte(fmt.Sprintf(`apiVersion: v1
kind: Config
clusters:
- name: homelab
  cluster:
    server: https://%s:6443
contexts:
- name: admin@homelab
  context:
    cluster: homelab
    user: admin@homelab
current-context: admin@homelab
users:
- name: admin@homelab
  user:
    token: test
`, address))
}

// FakeWorkflows keeps workflows and hardware in memory. Submit follows the
// same create, unchanged or replace rules as the real engine.
type FakeWorkflows struct {
	mu       sync.Mutex
	jobs     map[string]tinkerbell.Job
	states   map[string]tinkerbell.JobState
	hardware map[string]tinkerbell.HardwareSpec
	submits  []string
	deletes  []string
	lists    int

	// OnSubmit runs after a job was stored.
	OnSubmit func(job tinkerbell.Job)
	// OnList runs before every ListStates with the 1-based call number and
	// may change states with SetState.
	OnList func(call int)

	SubmitErr error
	ListErr   error
	PatchErr  error
}

// NewFakeWorkflows creates an empty engine.
func NewFakeWorkflows() *FakeWorkflows {
	return &FakeWorkflows{
		jobs:     make(map[string]tinkerbell.Job),
		states:   make(map[string]tinkerbell.JobState),
		hardware: make(map[string]tinkerbell.HardwareSpec),
	}
}

// Submit implements provisioning.WorkflowAPI.
func (f *FakeWorkflows) Submit(_ context.Context, job tinkerbell.Job) (tinkerbell.SubmitResult, error) {
	if f.SubmitErr != nil {
		return tinkerbell.Created, f.SubmitErr
	}

	f.mu.Lock()
	result := tinkerbell.Created
	if existing, ok := f.jobs[job.Name]; ok {
		if sameJob(existing, job) {
			f.mu.Unlock()
			return tinkerbell.Unchanged, nil
		}
		result = tinkerbell.Replaced
	}
	f.jobs[job.Name] = job
	f.states[job.Name] = tinkerbell.JobState{Name: job.Name, State: string(v1alpha1.WorkflowStatePending), Found: true}
	f.submits = append(f.submits, job.Name)
	hook := f.OnSubmit
	f.mu.Unlock()

	if hook != nil {
		hook(job)
	}
	return result, nil
}

func sameJob(a, b tinkerbell.Job) bool {
	if a.Template != b.Template || a.Hardware != b.Hardware || len(a.Params) != len(b.Params) {
		return false
	}
	for k, v := range a.Params {
		if b.Params[k] != v {
			return false
		}
	}
	return true
}

// SetState changes the state of a stored job.
func (f *FakeWorkflows) SetState(name string, state v1alpha1.WorkflowState, action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[name] = tinkerbell.JobState{Name: name, State: string(state), CurrentAction: action, Found: true}
}

// ListStates implements provisioning.WorkflowAPI.
func (f *FakeWorkflows) ListStates(_ context.Context, names []string) ([]tinkerbell.JobState, error) {
	f.mu.Lock()
	f.lists++
	call, hook := f.lists, f.OnList
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tinkerbell.JobState, 0, len(names))
	for _, name := range names {
		st, ok := f.states[name]
		if !ok {
			st = tinkerbell.JobState{Name: name}
		}
		out = append(out, st)
	}
	return out, nil
}

// Get implements provisioning.WorkflowAPI.
func (f *FakeWorkflows) Get(_ context.Context, name string) (*v1alpha1.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[name]
	if !ok {
		return nil, fmt.Errorf("failed to get workflow %s: not found", name)
	}
	st := f.states[name]
	return &v1alpha1.Workflow{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: job.Labels},
		Spec: v1alpha1.WorkflowSpec{
			TemplateRef: job.Template,
			HardwareRef: job.Hardware,
			HardwareMap: job.Params,
		},
		Status: v1alpha1.WorkflowStatus{
			State:         v1alpha1.WorkflowState(st.State),
			CurrentAction: st.CurrentAction,
		},
	}, nil
}

// Delete implements provisioning.WorkflowAPI.
func (f *FakeWorkflows) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, name)
	delete(f.states, name)
	f.deletes = append(f.deletes, name)
	return nil
}

// PatchHardware implements provisioning.WorkflowAPI.
func (f *FakeWorkflows) PatchHardware(_ context.Context, name string, spec tinkerbell.HardwareSpec) error {
	if f.PatchErr != nil {
		return f.PatchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hardware[name] = spec
	return nil
}

// Hardware returns the last patched spec of a node.
func (f *FakeWorkflows) Hardware(name string) (tinkerbell.HardwareSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hw, ok := f.hardware[name]
	return hw, ok
}

// Job returns a stored job.
func (f *FakeWorkflows) Job(name string) (tinkerbell.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[name]
	return job, ok
}

// Deletes returns the names of every deleted workflow in order.
func (f *FakeWorkflows) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// Submits returns the names of every stored submission in order.
func (f *FakeWorkflows) Submits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submits...)
}

// JobNames returns the names of all stored jobs, sorted.
func (f *FakeWorkflows) JobNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.jobs))
	for name := range f.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FakeCluster is a provisioning.ClusterAPI over scripted readiness.
type FakeCluster struct {
	mu         sync.Mutex
	authorizes int

	// AuthorizeFunc gets the 1-based attempt number. Nil means authorized.
	AuthorizeFunc func(attempt int) error
	Readiness     k8s.Readiness
	WaitReadyErr  error
	waits         []int
}

// Authorize implements provisioning.ClusterAPI.
func (f *FakeCluster) Authorize(_ context.Context) error {
	f.mu.Lock()
	f.authorizes++
	attempt := f.authorizes
	f.mu.Unlock()
	if f.AuthorizeFunc != nil {
		return f.AuthorizeFunc(attempt)
	}
	return nil
}

// ReadyNodes implements provisioning.ClusterAPI.
func (f *FakeCluster) ReadyNodes(_ context.Context) (k8s.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Readiness, nil
}

// WaitReady implements provisioning.ClusterAPI.
func (f *FakeCluster) WaitReady(_ context.Context, want int, _, _ time.Duration) (k8s.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, want)
	return f.Readiness, f.WaitReadyErr
}

// Authorizations returns how many times Authorize was called.
func (f *FakeCluster) Authorizations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorizes
}

// Waits returns the want argument of every WaitReady call.
func (f *FakeCluster) Waits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.waits...)
}

// Factory returns a ClusterClientFactory always handing out f.
func (f *FakeCluster) Factory() provisioning.ClusterClientFactory {
	return func([]byte) (provisioning.ClusterAPI, error) { return f, nil }
}

var (
	_ provisioning.Prober        = (*FakeProber)(nil)
	_ provisioning.Waker         = (*FakeWaker)(nil)
	_ provisioning.NodeConfigAPI = (*FakeNodeConfig)(nil)
	_ provisioning.WorkflowAPI   = (*FakeWorkflows)(nil)
	_ provisioning.ClusterAPI    = (*FakeCluster)(nil)
)
