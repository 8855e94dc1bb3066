package k8s

import (
	"context"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Readiness summarizes node readiness at one point in time.
type Readiness struct {
	Ready    []string
	NotReady []string
}

// Total returns the number of registered nodes.
func (r Readiness) Total() int {
	return len(r.Ready) + len(r.NotReady)
}

func (r Readiness) String() string {
	return fmt.Sprintf("%d/%d ready", len(r.Ready), r.Total())
}

// ListNodes returns all registered nodes.
func (c *Client) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return nodes.Items, nil
}

// ReadyNodes splits registered nodes by their Ready condition.
func (c *Client) ReadyNodes(ctx context.Context) (Readiness, error) {
	nodes, err := c.ListNodes(ctx)
	if err != nil {
		return Readiness{}, err
	}

	var r Readiness
	for i := range nodes {
		if isNodeReady(&nodes[i]) {
			r.Ready = append(r.Ready, nodes[i].Name)
		} else {
			r.NotReady = append(r.NotReady, nodes[i].Name)
		}
	}
	sort.Strings(r.Ready)
	sort.Strings(r.NotReady)
	return r, nil
}

// WaitReady polls until at least want nodes report Ready or timeout elapses.
// The last observed readiness is returned in both cases.
func (c *Client) WaitReady(ctx context.Context, want int, interval, timeout time.Duration) (Readiness, error) {
	var last Readiness
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		r, err := c.ReadyNodes(ctx)
		if err != nil {
			// API server may still be settling
			return false, nil
		}
		last = r
		return len(r.Ready) >= want, nil
	})
	if err != nil {
		return last, fmt.Errorf("nodes not ready (%s, want %d): %w", last, want, err)
	}
	return last, nil
}

// isNodeReady checks the NodeReady condition.
func isNodeReady(node *corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}
