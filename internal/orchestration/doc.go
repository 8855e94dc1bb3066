// Package orchestration provides high-level workflow coordination for a
// provisioning run.
//
// This package assembles the provisioning phases from the
// internal/provisioning subpackages, runs them as strict barriers and turns
// the final state into a Report.
//
// # Workflow
//
// The Orchestrator executes the following phases in order:
//  1. Preflight - configuration and dependency checks
//  2. Netboot - hardware declarations with network boot enabled
//  3. Power - reset running nodes, wake the rest, wait until reachable
//  4. Imaging - install workflows, polled until they settle
//  5. Reboot - reboot workflows, network boot disabled
//  6. Configure - machine configuration with per-node fallback
//  7. Bootstrap - etcd bootstrap and authorized credentials
//  8. Verify - node readiness and credential persistence
//
// # Usage
//
//	orch := orchestration.NewOrchestrator(deps)
//	report, err := orch.Run(ctx, cfg, run)
//
// Every phase is safe to rerun: workflows are recreated only when they
// differ and configuration is reapplied idempotently.
package orchestration
