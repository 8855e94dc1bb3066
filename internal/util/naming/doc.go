// Package naming provides consistent names for the objects and files a run
// creates.
//
// Workflow names follow {cluster}-{node}-{kind}. Hardware objects are named
// after the node. Re-running with the same inventory therefore addresses the
// same objects, which is what makes submissions idempotent.
package naming
