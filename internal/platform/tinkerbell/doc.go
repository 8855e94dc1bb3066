// Package tinkerbell talks to the workflow engine through its Kubernetes API.
//
// Workflows and Hardware are custom resources in the management cluster.
// [Engine] submits workflows by name, reads back their state and toggles
// the netboot flags of Hardware objects. It never waits: polling is the
// caller's job.
package tinkerbell
