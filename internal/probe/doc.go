// Package probe classifies node liveness.
//
// A probe first tries a TCP connection to the target runtime port. If that
// fails it sends a single ICMP echo. The result is one of three statuses and
// is never persisted: every phase probes again.
package probe
