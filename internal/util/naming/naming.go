package naming

import "fmt"

// Workflow kinds.
const (
	KindInstall = "install"
	KindReboot  = "reboot"
)

// Workflow returns the name of a node's workflow of the given kind.
func Workflow(cluster, node, kind string) string {
	return fmt.Sprintf("%s-%s-%s", cluster, node, kind)
}

func InstallWorkflow(cluster, node string) string {
	return Workflow(cluster, node, KindInstall)
}

func RebootWorkflow(cluster, node string) string {
	return Workflow(cluster, node, KindReboot)
}

// Hardware returns the name of a node's Hardware object.
func Hardware(node string) string {
	return node
}

func DelegateJob(cluster string) string {
	return fmt.Sprintf("%s-provision", cluster)
}

func DelegateSecret(cluster string) string {
	return fmt.Sprintf("%s-provision-input", cluster)
}

// Local credential files written after a successful bootstrap.
const (
	KubeconfigFile  = "kubeconfig"
	TalosconfigFile = "talosconfig"
)
