// Package config defines the on-disk configuration of a provisioning run.
//
// The [Config] struct lists the physical nodes in declaration order, where
// the Talos machine configurations live, which Tinkerbell templates to use,
// and where the resulting credentials are stored. [Timeouts] collects every
// polling interval and window so they can be tuned per network without code
// changes.
package config
