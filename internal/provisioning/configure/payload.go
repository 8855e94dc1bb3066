package configure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imamik/metalboot/internal/config"
	"github.com/imamik/metalboot/internal/inventory"
)

// ErrMissingBase is returned when the role base configuration is absent.
var ErrMissingBase = errors.New("missing role base configuration")

// Payload is the configuration chosen for one node.
type Payload struct {
	Path    string
	Data    []byte
	PerNode bool

	// NodeErr is why the node's own file was passed over for the role base.
	NodeErr error
}

// NodeFile returns the path of a node's own configuration.
func NodeFile(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Talos.ConfigDir, "nodes", name+".yaml")
}

// RoleFile returns the path of the base configuration for a role.
func RoleFile(cfg *config.Config, role inventory.Role) string {
	return filepath.Join(cfg.Talos.ConfigDir, string(role)+".yaml")
}

// Resolve picks the node's own file when it exists and is not empty, and the
// role base otherwise. An unreadable node file also yields the role base,
// with NodeErr set.
func Resolve(cfg *config.Config, n inventory.Node) (Payload, error) {
	path := NodeFile(cfg, n.Name)
	data, err := os.ReadFile(path)
	switch {
	case err == nil && len(data) > 0:
		return Payload{Path: path, Data: data, PerNode: true}, nil
	case err == nil || errors.Is(err, os.ErrNotExist):
		return RoleBase(cfg, n.Role)
	}

	nodeErr := fmt.Errorf("failed to read %s: %w", path, err)
	base, baseErr := RoleBase(cfg, n.Role)
	if baseErr != nil {
		return Payload{}, fmt.Errorf("%w (fallback: %v)", nodeErr, baseErr)
	}
	base.NodeErr = nodeErr
	return base, nil
}

// RoleBase loads the base configuration for role.
func RoleBase(cfg *config.Config, role inventory.Role) (Payload, error) {
	path := RoleFile(cfg, role)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Payload{}, fmt.Errorf("%w: %s", ErrMissingBase, path)
	}
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("%w: %s is empty", ErrMissingBase, path)
	}
	return Payload{Path: path, Data: data}, nil
}
