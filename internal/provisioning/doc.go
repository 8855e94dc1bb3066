// Package provisioning provides shared types, interfaces, and orchestration for cluster provisioning.
//
// # Subpackages
//
//   - power/: Reset running nodes, wake the others, wait for them to come back
//   - imaging/: Netboot toggling, install and reboot workflows
//   - configure/: Machine configuration with per-node fallback
//   - cluster/: Bootstrap, credential verification, readiness and persistence
//
// # Core Types
//
// Context carries configuration, the node registry, external dependencies,
// state and the observer.
// Phase defines a provisioning step with Name() and Provision() methods.
// State accumulates results from each phase (probe snapshot, imaged nodes, credentials).
// Metrics records phase durations and outcomes in a per-run registry.
package provisioning
