package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
)

var (
	_ gocmd.Querier[GetEventMessage, core.WebhookEvent]    = (*GetEventQuery)(nil)
	_ gocmd.Querier[ListDeadMessage, []core.WebhookEvent]  = (*ListDeadQuery)(nil)
	_ gocmd.Querier[GetHealthMessage, core.HealthSnapshot] = (*GetHealthQuery)(nil)
)
