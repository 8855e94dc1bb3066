// Package cluster bootstraps etcd on the first control-plane node, waits for
// usable credentials and verifies that the nodes joined.
//
// The bootstrap phase issues the bootstrap call, waits for the node API to
// answer authenticated requests and then polls for a kubeconfig that the
// cluster actually accepts. The verify phase waits for nodes to report Ready
// (or only sleeps when no CNI was installed) and persists the credentials
// locally, into the management cluster and optionally to object storage.
package cluster
