// Package talos talks to the Talos machine API of individual nodes.
//
// It applies machine configurations to nodes in maintenance mode, bootstraps
// etcd on the first control plane, fetches the admin kubeconfig and issues
// reset requests to nodes that already run Talos. It also builds the small
// per-node patch (hostname, CNI, CoreDNS) merged into the operator's base
// configuration before it is applied.
package talos
