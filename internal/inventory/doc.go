// Package inventory turns the declared node list into a read-only registry.
//
// Roles are positional: the first controlPlaneCount nodes in declaration
// order are control planes and the rest are workers. The registry is
// rebuilt on every run and never persisted.
package inventory
