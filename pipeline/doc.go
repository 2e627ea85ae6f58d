// Package pipeline implements the webhook processing engine: durable
// append-only intake with identifier dedup, per-source ordered dispatch,
// exponential retry with a dead-letter terminal state, crash recovery from
// the event log, and a background health monitor.
//
// Ordering is structural rather than advisory. Each source key owns one
// worker goroutine that always processes the oldest non-terminal event for
// its source, so a backing-off event gates newer events from the same source
// while leaving every other source unaffected.
package pipeline
