// Package main hosts the curator CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground and
// translates every other invocation into HTTP calls against the daemon API:
// stage status, manual triggers, staging scans, rechecks and task listings.
// Configuration scaffolding works without a running daemon.
package main
