package sqlstore

import "github.com/goliatone/go-ingest/core"

var (
	_ core.EventLog = (*EventStore)(nil)
	_ core.EventLog = (*CachedEventLog)(nil)
)
