// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] runs independent per-node operations and joins every error.
// [RunBounded] runs fire-and-forget style operations and gives up waiting
// after a fixed budget. [ForEach] fans out over a slice with a concurrency
// limit and stops at the first error.
package async
