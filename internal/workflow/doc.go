// Package workflow schedules the pipeline stages.
//
// Every stage is driven by its own fixed-delay tick loop. A tick does nothing
// unless the stage was triggered; a triggered tick takes the stage's run lock
// without blocking, fetches one bounded batch from the stage's Source, runs it
// through the worker pool and then triggers the stages downstream of it in the
// Graph. A stage whose max_threads setting is zero or less is disabled: its
// ticks consume the trigger and do nothing else.
//
// There is no central coordinator. Work moves between stages because handlers
// enqueue tasks for the next stage in the store and the cascade wakes that
// stage up. A cron job triggers every stage periodically as a safety net for
// lost triggers, and a recheck job re-queues stale finished tasks.
package workflow
