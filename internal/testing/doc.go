// Package testing provides test utilities, builders, and fakes for unit and integration tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ConfigBuilder: Fluent builder for creating test configurations
//   - TalosDir: Writes role base configurations and a client config to a temp dir
//   - FakeProber, FakeWaker, FakeNodeConfig, FakeWorkflows, FakeCluster: scripted
//     stand-ins for the external APIs a run talks to
//   - Mock*: testify mocks for strict call expectations
//   - RecordingObserver: an Observer that keeps everything it is told
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithClusterName("homelab").
//	    WithNodes(4, 1).
//	    WithTalosDir(testing.TalosDir(t)).
//	    Build()
package testing
