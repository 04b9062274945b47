// Package daemon coordinates the long-running curator process.
//
// It wires configuration, the library store, the workflow manager and the
// staging scanner/watcher into a single lifecycle with flock-based locking to
// prevent multiple instances, and serves the HTTP API the CLI talks to.
//
// Keep orchestration logic here: individual stages live in their own
// packages while the daemon focuses on startup, shutdown and high level
// coordination.
package daemon
