// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and run identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper. The workflow layer uses
//     ErrConflict to tell a retryable storage conflict apart from a handler
//     failure that should mark the task as errored.
package services
