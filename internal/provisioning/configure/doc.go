// Package configure pushes Talos machine configuration to freshly imaged
// nodes.
//
// Each node gets its own nodes/<name>.yaml when one exists, otherwise the
// base for its role. A hostname and feature patch is merged on top. A node
// whose own file keeps failing is retried once with the role base.
package configure
