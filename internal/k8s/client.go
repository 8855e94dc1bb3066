// Package k8s wraps the Kubernetes API calls made against the freshly
// bootstrapped cluster and against the management cluster.
package k8s

import (
	"context"
	"errors"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrUnauthorized is returned when the credentials are rejected or may not
// list nodes. Shortly after bootstrap this only means "not ready yet".
var ErrUnauthorized = errors.New("credentials not authorized")

// Client wraps Kubernetes API operations.
type Client struct {
	clientset kubernetes.Interface
}

// NewClient creates a client from a kubeconfig file. An empty path uses the
// in-cluster configuration or the default loading rules.
func NewClient(kubeconfigPath string) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		if kubeconfigPath == "" {
			if inCluster, icErr := rest.InClusterConfig(); icErr == nil {
				return newFromRESTConfig(inCluster)
			}
		}
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	return newFromRESTConfig(config)
}

// NewClientFromBytes creates a new Kubernetes client from kubeconfig bytes.
func NewClientFromBytes(kubeconfigData []byte) (*Client, error) {
	config, err := clientcmd.RESTConfigFromKubeConfig(kubeconfigData)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig from bytes: %w", err)
	}
	return newFromRESTConfig(config)
}

// NewForClientset wraps an existing clientset.
func NewForClientset(cs kubernetes.Interface) *Client {
	return &Client{clientset: cs}
}

func newFromRESTConfig(config *rest.Config) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &Client{clientset: clientset}, nil
}

// Clientset returns the underlying clientset.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// Authorize checks that the credentials are accepted and allowed to list
// nodes, which is all the verifier needs.
func (c *Client) Authorize(ctx context.Context) error {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Verb:     "list",
				Resource: "nodes",
			},
		},
	}

	resp, err := c.clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return fmt.Errorf("access review failed: %w", err)
	}

	if !resp.Status.Allowed {
		reason := resp.Status.Reason
		if reason == "" {
			reason = "list nodes denied"
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
	}
	return nil
}
