package labels

// Standard label keys.
const (
	// KeyCluster identifies which cluster an object belongs to
	KeyCluster = "metalboot.io/cluster"

	// KeyRole is the node role (controlplane, worker)
	KeyRole = "metalboot.io/role"

	// KeyNode is the node name from the inventory
	KeyNode = "metalboot.io/node"

	// KeyJob distinguishes install and reboot workflows
	KeyJob = "metalboot.io/job"

	// KeyManagedBy follows the recommended app.kubernetes.io label
	KeyManagedBy = "app.kubernetes.io/managed-by"
)

// ManagedBy is the value of KeyManagedBy.
const ManagedBy = "metalboot"

// LabelBuilder provides a fluent interface for building object labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the cluster and manager pre-set.
func NewLabelBuilder(clusterName string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyCluster:   clusterName,
			KeyManagedBy: ManagedBy,
		},
	}
}

// WithRole adds the node role.
func (lb *LabelBuilder) WithRole(role string) *LabelBuilder {
	lb.labels[KeyRole] = role
	return lb
}

// WithNode adds the node name.
func (lb *LabelBuilder) WithNode(node string) *LabelBuilder {
	lb.labels[KeyNode] = node
	return lb
}

// WithJob adds the workflow kind.
func (lb *LabelBuilder) WithJob(kind string) *LabelBuilder {
	lb.labels[KeyJob] = kind
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}
