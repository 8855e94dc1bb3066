package config

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "metalboot.yaml"

// Port and path defaults.
const (
	// TalosAPIPort is the apid port served by Talos nodes, both in maintenance
	// mode and once configured.
	TalosAPIPort = 50000

	// DefaultWakeBroadcast is where magic packets are sent when no broadcast
	// address is configured.
	DefaultWakeBroadcast = "255.255.255.255:9"

	DefaultWorkflowNamespace = "tink-system"
	DefaultSecretNamespace   = "metalboot"
	DefaultSecretName        = "cluster-credentials"
	DefaultOutputDir         = "."
	DefaultDiskDevice        = "/dev/sda"
)

// Config is the full description of a provisioning run as read from disk.
type Config struct {
	ClusterName       string         `yaml:"clusterName"`
	ControlPlaneCount int            `yaml:"controlPlaneCount"`
	Nodes             []NodeSpec     `yaml:"nodes"`
	Talos             TalosConfig    `yaml:"talos"`
	Workflow          WorkflowConfig `yaml:"workflow"`
	Network           NetworkConfig  `yaml:"network"`
	Cluster           ClusterConfig  `yaml:"cluster"`
	Archive           ArchiveConfig  `yaml:"archive"`
	Timeouts          Timeouts       `yaml:"timeouts"`
}

// NodeSpec is one physical machine as declared by the operator. The order of
// the Nodes slice is significant: it decides which nodes are control planes.
type NodeSpec struct {
	Name    string `yaml:"name"`
	MAC     string `yaml:"mac"`
	Address string `yaml:"address"`
}

// TalosConfig locates the machine configuration files produced by
// `talosctl gen config`.
type TalosConfig struct {
	// ConfigDir holds controlplane.yaml, worker.yaml, talosconfig and an
	// optional nodes/<name>.yaml per node.
	ConfigDir string `yaml:"configDir"`

	// TalosConfigPath overrides <ConfigDir>/talosconfig.
	TalosConfigPath string `yaml:"talosconfig"`

	// Version is the Talos image version streamed to disk by the install workflow.
	Version string `yaml:"version"`

	// Port is the apid port used for liveness probes and the configuration API.
	Port int `yaml:"port"`
}

// WorkflowConfig describes the Tinkerbell objects the run creates.
type WorkflowConfig struct {
	Namespace          string `yaml:"namespace"`
	InstallTemplate    string `yaml:"installTemplate"`
	RebootTemplate     string `yaml:"rebootTemplate"`
	DiskDevice         string `yaml:"diskDevice"`
	ManagementAddress  string `yaml:"managementAddress"`
	ImageServerBaseURL string `yaml:"imageServerBaseURL"`

	// Kubeconfig of the management cluster running Tinkerbell. Empty means
	// in-cluster config or the default loading rules.
	Kubeconfig string `yaml:"kubeconfig"`
}

// NetworkConfig holds layer-2 details needed for wake signals.
type NetworkConfig struct {
	BroadcastAddress string `yaml:"broadcastAddress"`
}

// ClusterConfig controls where the cluster credentials end up.
type ClusterConfig struct {
	OutputDir       string `yaml:"outputDir"`
	SecretNamespace string `yaml:"secretNamespace"`
	SecretName      string `yaml:"secretName"`
}

// ArchiveConfig optionally mirrors credentials to S3-compatible object storage.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" && a.Endpoint != ""
}

// ApplyDefaults fills in unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Talos.Port == 0 {
		c.Talos.Port = TalosAPIPort
	}
	if c.Workflow.Namespace == "" {
		c.Workflow.Namespace = DefaultWorkflowNamespace
	}
	if c.Workflow.DiskDevice == "" {
		c.Workflow.DiskDevice = DefaultDiskDevice
	}
	if c.Network.BroadcastAddress == "" {
		c.Network.BroadcastAddress = DefaultWakeBroadcast
	}
	if c.Cluster.OutputDir == "" {
		c.Cluster.OutputDir = DefaultOutputDir
	}
	if c.Cluster.SecretNamespace == "" {
		c.Cluster.SecretNamespace = DefaultSecretNamespace
	}
	if c.Cluster.SecretName == "" {
		c.Cluster.SecretName = DefaultSecretName
	}
	c.Timeouts.applyDefaults()
}
