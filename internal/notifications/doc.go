// Package notifications delivers pipeline alerts via ntfy.
//
// The default implementation publishes to the topic configured under
// [notifications] and degrades to a no-op when no topic is set. Stage
// handlers are wrapped with Notify so failures and unmatched videos raise an
// alert without the handlers knowing about transport.
package notifications
