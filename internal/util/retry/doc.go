// Package retry re-runs operations that fail transiently.
//
// [Do] retries with exponential backoff up to a fixed number of attempts.
// Errors wrapped with [Fatal] stop the loop immediately. The provisioning
// phases use it for single RPCs (config apply, bootstrap, secret writes)
// where one failure says nothing about the next attempt.
package retry
