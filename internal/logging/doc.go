// Package logging builds the structured loggers used across curator.
//
// Everything logs through log/slog. New picks a console handler (one
// key=value line per record, component and stage hoisted in front of the
// message) or the JSON handler; "auto" chooses console when stdout is a
// terminal. Attr helpers and the Field constants keep key names consistent
// between stages, and WithContext stamps the stage, task and run identifiers
// carried by a context onto a logger.
package logging
