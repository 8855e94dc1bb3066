package tinkerbell

import (
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
)

// RESTConfig loads the management cluster config from kubeconfig, or from the
// default loading rules (KUBECONFIG, ~/.kube/config, in-cluster) when empty.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load management cluster config: %w", err)
	}
	return cfg, nil
}

// NewClient creates a controller-runtime client that knows the Tinkerbell
// and core Kubernetes types.
func NewClient(cfg *rest.Config) (client.Client, error) {
	c, err := client.New(cfg, client.Options{Scheme: v1alpha1.Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create management cluster client: %w", err)
	}
	return c, nil
}
