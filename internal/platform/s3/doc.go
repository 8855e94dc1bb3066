// Package s3 archives cluster credentials to S3-compatible object storage.
//
// Archiving is optional. When an archive section is configured, the
// kubeconfig and talosconfig produced by a run are uploaded under
// <prefix>/<cluster>/ next to a small manifest recording when they were
// written. Path-style addressing is used so self-hosted stores such as MinIO
// work without DNS wildcards.
package s3
