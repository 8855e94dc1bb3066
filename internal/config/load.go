package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, err
	}

	// Relative Talos paths are resolved against the config file location so
	// the run does not depend on the working directory.
	base := filepath.Dir(path)
	if cfg.Talos.ConfigDir != "" && !filepath.IsAbs(cfg.Talos.ConfigDir) {
		cfg.Talos.ConfigDir = filepath.Join(base, cfg.Talos.ConfigDir)
	}
	if cfg.Talos.TalosConfigPath != "" && !filepath.IsAbs(cfg.Talos.TalosConfigPath) {
		cfg.Talos.TalosConfigPath = filepath.Join(base, cfg.Talos.TalosConfigPath)
	}

	if err := cfg.ValidateFiles(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromBytes parses and validates a configuration from bytes. File
// references are not checked.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.Timeouts.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// FindConfigFile searches for a config file in common locations.
// It checks: current directory, then walks up to find metalboot.yaml.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		path := filepath.Join(dir, DefaultConfigFilename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("config file %s not found", DefaultConfigFilename)
}

// UnmarshalYAML accepts either the mapping form or the compact
// "name;mac;address" string used by older inventories.
func (n *NodeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		spec, err := ParseNodeRecord(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*n = spec
		return nil
	}

	type plain NodeSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*n = NodeSpec(p)
	return nil
}

// ParseNodeRecord splits a compact "name;mac;address" record. Only the shape
// is checked here; addresses are validated by Validate.
func ParseNodeRecord(record string) (NodeSpec, error) {
	fields := strings.Split(strings.TrimSpace(record), ";")
	if len(fields) != 3 {
		return NodeSpec{}, fmt.Errorf("%w: %q must have the form name;mac;address", ErrInvalidNode, record)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if fields[i] == "" {
			return NodeSpec{}, fmt.Errorf("%w: %q has an empty field", ErrInvalidNode, record)
		}
	}
	return NodeSpec{Name: fields[0], MAC: fields[1], Address: fields[2]}, nil
}
