// Package config loads, normalizes, and validates curator configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TMDB_API_KEY. Per-stage scheduler settings are resolved through
// Config.StageSettings so partial [stages.<name>] tables fall back to the
// built-in defaults.
//
// Live wraps a loaded Config for the daemon: it re-reads the file when it
// changes on disk and swaps the new value in atomically, keeping the previous
// config when the edited file fails to parse or validate.
package config
