// Package core defines the webhook event domain model and the contracts the
// rest of the module composes against: the durable event log, the dependency
// resolver, typed event handlers, and the configuration surface.
//
// Events move through a monotone lifecycle:
// pending -> in_flight -> succeeded | failed_retryable -> (in_flight ...) -> dead.
// succeeded and dead are terminal and never revisited. ApplyMutation is the
// single choke point that enforces these transitions for every storage
// backend.
package core
