// Package sqlstore provides the relational EventLog backend over bun, with
// dialect coverage for Postgres and SQLite via the embedded migration tree,
// plus an optional read-through cache for single-event lookups.
package sqlstore
