package query

import (
	"strings"
)

const (
	TypeGetEvent  = "ingest.query.event.get"
	TypeListDead  = "ingest.query.dead.list"
	TypeGetHealth = "ingest.query.health.get"
)

type GetEventMessage struct {
	EventID string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

// ListDeadMessage pages the dead-letter queue, newest first. Limit <= 0
// returns every dead event.
type ListDeadMessage struct {
	Limit int
}

func (ListDeadMessage) Type() string { return TypeListDead }

func (m ListDeadMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type GetHealthMessage struct{}

func (GetHealthMessage) Type() string { return TypeGetHealth }

func (GetHealthMessage) Validate() error { return nil }
