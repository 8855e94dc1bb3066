package provisioning

import (
	"context"
	"net"
	"time"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
	"github.com/imamik/metalboot/internal/inventory"
	"github.com/imamik/metalboot/internal/k8s"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/probe"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// NodeConfigAPI is the node-configuration API.
// Implemented by internal/platform/talos.Client.
type NodeConfigAPI interface {
	// ApplyConfig merges patch into base and applies the result to the node
	// at address. insecure selects maintenance-mode (first contact) access.
	ApplyConfig(ctx context.Context, address string, base, patch []byte, insecure bool) error

	// Bootstrap starts etcd on the node. An already bootstrapped node is not
	// an error.
	Bootstrap(ctx context.Context, address string) error

	// HealthCheck returns nil once the node answers authenticated calls.
	HealthCheck(ctx context.Context, address string) error

	// FetchCredentials returns the cluster admin kubeconfig.
	FetchCredentials(ctx context.Context, address string) ([]byte, error)

	// Reset wipes the node and reboots it without waiting for completion.
	Reset(ctx context.Context, address string) error

	// TalosConfig returns the client configuration used to authenticate.
	TalosConfig() []byte
}

// WorkflowAPI is the workflow and hardware-declaration API.
// Implemented by internal/platform/tinkerbell.Engine.
type WorkflowAPI interface {
	Submit(ctx context.Context, job tinkerbell.Job) (tinkerbell.SubmitResult, error)
	ListStates(ctx context.Context, names []string) ([]tinkerbell.JobState, error)
	Get(ctx context.Context, name string) (*v1alpha1.Workflow, error)
	Delete(ctx context.Context, name string) error
	PatchHardware(ctx context.Context, name string, spec tinkerbell.HardwareSpec) error
}

// Prober classifies node liveness.
// Implemented by internal/probe.Prober.
type Prober interface {
	Probe(ctx context.Context, node inventory.Node) probe.Status
	ProbeAll(ctx context.Context, nodes []inventory.Node) probe.Snapshot
}

// Waker sends wake signals.
// Implemented by internal/platform/wol.Sender.
type Waker interface {
	Wake(ctx context.Context, mac net.HardwareAddr) error
}

// ClusterAPI is the control API of the cluster being built.
// Implemented by internal/k8s.Client.
type ClusterAPI interface {
	// Authorize returns k8s.ErrUnauthorized when the credentials are not
	// accepted yet.
	Authorize(ctx context.Context) error
	ReadyNodes(ctx context.Context) (k8s.Readiness, error)
	WaitReady(ctx context.Context, want int, interval, timeout time.Duration) (k8s.Readiness, error)
}

// ClusterClientFactory builds a cluster client from kubeconfig bytes.
type ClusterClientFactory func(kubeconfig []byte) (ClusterAPI, error)

// SecretStore mirrors credentials into the management cluster.
// Implemented by internal/k8s.Client.
type SecretStore interface {
	EnsureNamespace(ctx context.Context, name string) error
	CreateOrUpdateSecret(ctx context.Context, namespace, name string, data map[string][]byte, labels map[string]string) error
}

// Archiver copies credentials to object storage.
// Implemented by internal/platform/s3.Archive.
type Archiver interface {
	Store(ctx context.Context, cluster string, files map[string][]byte) ([]string, error)
}

// Confirmer asks the operator a yes/no question.
type Confirmer func(prompt string) (bool, error)
