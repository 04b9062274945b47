// Package preflight provides readiness checks for the filesystem paths,
// binaries and services curator depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at start-up and logs every failure.
//   - The health endpoint reports Local on every request, so it never waits
//     on the network.
package preflight
