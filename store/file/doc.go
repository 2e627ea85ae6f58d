// Package filestore is the embedded durable backend for the event log: one
// JSON file per event under a data directory, written atomically via temp
// file plus rename. It suits single-process deployments that need crash
// recovery without running a database; use the SQL backend when several
// processes share the log.
package filestore
