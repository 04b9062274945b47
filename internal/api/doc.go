// Package api defines the wire-format types of the daemon's HTTP API and a
// client for them.
//
// DTOs use camelCase JSON tags. Task statuses and stage names are exposed as
// the same lowercase strings the store uses, and timestamps use RFC3339 with
// milliseconds. The workflow status summary is passed through unchanged so
// the CLI renders exactly what the scheduler reports.
package api
