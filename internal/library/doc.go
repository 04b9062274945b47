// Package library persists the media library and the per-stage task table in
// SQLite.
//
// Tasks are the unit of pending work: one row per (stage, ref) with a status
// and an optimistic lock version. Stage sources fetch eligible rows (status
// new or updated) oldest first; handlers complete them with the version they
// read, and a version mismatch surfaces as services.ErrConflict so the row is
// simply picked up again on the next poll. Re-enqueueing a finished task flips
// it back to updated; re-enqueueing a pending one bumps its version.
//
// Entity tables (media, subtitles, people, credits, filmography, artwork,
// trailers, files) hold what the handlers discover. Schema changes bump
// schemaVersion in schema.go; users delete the database to adopt them.
package library
