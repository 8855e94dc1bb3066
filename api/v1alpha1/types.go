package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// WorkflowState is the state string reported by the workflow engine, e.g.
// STATE_PENDING or STATE_SUCCESS.
type WorkflowState string

// Workflow states written by the Tinkerbell controller.
const (
	WorkflowStatePending WorkflowState = "STATE_PENDING"
	WorkflowStateRunning WorkflowState = "STATE_RUNNING"
	WorkflowStateSuccess WorkflowState = "STATE_SUCCESS"
	WorkflowStateFailed  WorkflowState = "STATE_FAILED"
	WorkflowStateTimeout WorkflowState = "STATE_TIMEOUT"
)

// WorkflowSpec names a template and the hardware it runs against.
type WorkflowSpec struct {
	// TemplateRef is the name of the Template to render
	TemplateRef string `json:"templateRef,omitempty"`

	// HardwareRef is the name of the Hardware object the workflow targets
	HardwareRef string `json:"hardwareRef,omitempty"`

	// HardwareMap supplies template parameters, keyed by template variable
	HardwareMap map[string]string `json:"hardwareMap,omitempty"`
}

// WorkflowStatus is written by the engine.
type WorkflowStatus struct {
	// State is the aggregate workflow state
	// +optional
	State WorkflowState `json:"state,omitempty"`

	// CurrentAction is the action the agent is executing
	// +optional
	CurrentAction string `json:"currentAction,omitempty"`

	// GlobalTimeout is the template timeout in seconds
	// +optional
	GlobalTimeout int64 `json:"globalTimeout,omitempty"`

	// Tasks lists the rendered tasks and their action states
	// +optional
	Tasks []Task `json:"tasks,omitempty"`
}

// Task is a group of actions run by one agent.
type Task struct {
	Name       string   `json:"name"`
	WorkerAddr string   `json:"worker"`
	Actions    []Action `json:"actions"`
}

// Action is a single container run by the agent.
type Action struct {
	Name    string        `json:"name"`
	Image   string        `json:"image"`
	Timeout int64         `json:"timeout"`
	Status  WorkflowState `json:"status,omitempty"`

	// +optional
	StartedAt *metav1.Time `json:"startedAt,omitempty"`

	// Seconds is how long the action ran
	// +optional
	Seconds int64 `json:"seconds,omitempty"`

	// +optional
	Message string `json:"message,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=wf

// Workflow is one provisioning job for one machine.
type Workflow struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WorkflowSpec   `json:"spec,omitempty"`
	Status WorkflowStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// WorkflowList contains a list of Workflow.
type WorkflowList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Workflow `json:"items"`
}

// HardwareSpec declares a machine to the engine's DHCP and netboot services.
type HardwareSpec struct {
	// AgentID is the identifier the provisioning agent reports, usually the MAC
	// +optional
	AgentID string `json:"agentID,omitempty"`

	// Interfaces are the network interfaces of the machine
	// +optional
	Interfaces []Interface `json:"interfaces,omitempty"`
}

// Interface is one NIC with its DHCP lease and netboot settings.
type Interface struct {
	// +optional
	Netboot *Netboot `json:"netboot,omitempty"`
	// +optional
	DHCP *DHCP `json:"dhcp,omitempty"`
}

// Netboot controls PXE eligibility.
type Netboot struct {
	// AllowPXE lets the machine PXE boot
	// +optional
	AllowPXE *bool `json:"allowPXE,omitempty"`

	// AllowWorkflow lets the agent pick up workflows
	// +optional
	AllowWorkflow *bool `json:"allowWorkflow,omitempty"`

	// +optional
	OSIE *OSIE `json:"osie,omitempty"`
}

// OSIE locates the in-memory provisioning environment.
type OSIE struct {
	// +optional
	BaseURL string `json:"baseURL,omitempty"`
}

// DHCP is the lease handed out to the interface.
type DHCP struct {
	MAC string `json:"mac,omitempty"`
	// +optional
	Hostname string `json:"hostname,omitempty"`
	// +optional
	IP *IP `json:"ip,omitempty"`
}

// IP is a static address assignment.
type IP struct {
	Address string `json:"address,omitempty"`
	// +optional
	Netmask string `json:"netmask,omitempty"`
	// +optional
	Gateway string `json:"gateway,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Namespaced,shortName=hw

// Hardware declares one physical machine.
type Hardware struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec HardwareSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// HardwareList contains a list of Hardware.
type HardwareList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Hardware `json:"items"`
}
