package inventory

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/imamik/metalboot/internal/config"
)

// Role is the cluster role of a node.
type Role string

// Node roles.
const (
	RoleControlPlane Role = "controlplane"
	RoleWorker       Role = "worker"
)

// Registry errors.
var (
	ErrControlPlaneCount = errors.New("control plane count exceeds node count")
	ErrDuplicateMAC      = errors.New("duplicate hardware address")
	ErrDuplicateName     = errors.New("duplicate node name")
)

// Node is one physical machine with its derived role.
type Node struct {
	Name    string
	MAC     net.HardwareAddr
	Address netip.Addr
	Role    Role

	// Index is the position in declaration order.
	Index int
}

// IsControlPlane reports whether the node runs the control plane.
func (n Node) IsControlPlane() bool {
	return n.Role == RoleControlPlane
}

// HardwareID is the canonical lower-case MAC used as the workflow device key.
func (n Node) HardwareID() string {
	return strings.ToLower(n.MAC.String())
}

func (n Node) String() string {
	return fmt.Sprintf("%s (%s, %s)", n.Name, n.Address, n.Role)
}

// Registry is an immutable, ordered set of nodes.
type Registry struct {
	nodes []Node
	cp    int
}

// New builds the registry. The first controlPlaneCount specs become control
// planes.
func New(specs []config.NodeSpec, controlPlaneCount int) (*Registry, error) {
	if controlPlaneCount < 0 || controlPlaneCount > len(specs) {
		return nil, fmt.Errorf("%w: %d requested, %d nodes", ErrControlPlaneCount, controlPlaneCount, len(specs))
	}

	nodes := make([]Node, 0, len(specs))
	names := make(map[string]struct{}, len(specs))
	macs := make(map[string]string, len(specs))

	for i, spec := range specs {
		mac, err := net.ParseMAC(spec.MAC)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", config.ErrInvalidNode, spec.Name, err)
		}
		addr, err := netip.ParseAddr(spec.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", config.ErrInvalidNode, spec.Name, err)
		}

		if _, ok := names[spec.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, spec.Name)
		}
		names[spec.Name] = struct{}{}

		key := strings.ToLower(mac.String())
		if other, ok := macs[key]; ok {
			return nil, fmt.Errorf("%w: %s shared by %s and %s", ErrDuplicateMAC, key, other, spec.Name)
		}
		macs[key] = spec.Name

		role := RoleWorker
		if i < controlPlaneCount {
			role = RoleControlPlane
		}
		nodes = append(nodes, Node{Name: spec.Name, MAC: mac, Address: addr, Role: role, Index: i})
	}

	return &Registry{nodes: nodes, cp: controlPlaneCount}, nil
}

// FromConfig builds the registry from a loaded configuration.
func FromConfig(cfg *config.Config) (*Registry, error) {
	return New(cfg.Nodes, cfg.ControlPlaneCount)
}

// Nodes returns a copy of all nodes in declaration order.
func (r *Registry) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// ControlPlanes returns the control plane nodes in declaration order.
func (r *Registry) ControlPlanes() []Node {
	out := make([]Node, r.cp)
	copy(out, r.nodes[:r.cp])
	return out
}

// Workers returns the worker nodes in declaration order.
func (r *Registry) Workers() []Node {
	out := make([]Node, len(r.nodes)-r.cp)
	copy(out, r.nodes[r.cp:])
	return out
}

// FirstControlPlane returns the bootstrap target. ok is false when the
// registry has no control planes.
func (r *Registry) FirstControlPlane() (Node, bool) {
	if r.cp == 0 {
		return Node{}, false
	}
	return r.nodes[0], true
}

// ByName looks a node up by name.
func (r *Registry) ByName(name string) (Node, bool) {
	for _, n := range r.nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// RoleOf re-derives the role of a node from its position.
func (r *Registry) RoleOf(name string) (Role, bool) {
	n, ok := r.ByName(name)
	if !ok {
		return "", false
	}
	return n.Role, true
}

// Names returns node names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = n.Name
	}
	return out
}

// Len returns the number of nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// ControlPlaneCount returns the number of control plane nodes.
func (r *Registry) ControlPlaneCount() int {
	return r.cp
}
