// Package labels provides consistent labeling for the Kubernetes objects a
// run creates in the management cluster.
//
// All keys use the metalboot.io prefix. Workflows, Hardware, the credential
// Secret and the delegated Job carry the cluster name so a run can find
// (and an operator can clean up) everything it created.
package labels
