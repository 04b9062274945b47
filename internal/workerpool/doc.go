// Package workerpool runs one materialized batch of work items through a stage
// handler with a bounded number of workers.
//
// The batch is loaded into a closed, buffered channel before any worker
// starts, so workers poll without blocking and exit as soon as the queue is
// drained. Each item goes to exactly one worker. Handler failures are routed
// to the handler's OnError hook and never stop the remaining items; optimistic
// lock conflicts (services.ErrConflict) are logged and left for the next poll.
package workerpool
