// Package imaging drives the Tinkerbell workflows that stream Talos onto each
// node's disk.
//
// Three phases live here. The netboot phase marks every Hardware object as
// PXE-eligible. The imaging phase submits one install workflow per node and
// polls until all complete, one fails, progress stalls or the hard timeout
// hits; every abort dumps the workflow state. The reboot phase submits a
// short reboot workflow per node without waiting for it and then turns
// netboot off again so the next boot lands on disk.
package imaging
