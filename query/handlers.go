package query

import (
	"context"

	"github.com/goliatone/go-ingest/core"
)

// EventReader is the read surface the queries delegate to. The production
// implementation is *pipeline.Pipeline.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (core.WebhookEvent, error)
	ListDead(ctx context.Context, limit int) ([]core.WebhookEvent, error)
}

type HealthReader interface {
	Health(ctx context.Context) (core.HealthSnapshot, error)
}

type GetEventQuery struct {
	reader EventReader
}

func NewGetEventQuery(reader EventReader) *GetEventQuery {
	return &GetEventQuery{reader: reader}
}

func (q *GetEventQuery) Query(ctx context.Context, msg GetEventMessage) (core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEvent{}, queryDependencyError("query: event reader is required")
	}
	return q.reader.GetEvent(ctx, msg.EventID)
}

type ListDeadQuery struct {
	reader EventReader
}

func NewListDeadQuery(reader EventReader) *ListDeadQuery {
	return &ListDeadQuery{reader: reader}
}

func (q *ListDeadQuery) Query(ctx context.Context, msg ListDeadMessage) ([]core.WebhookEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: event reader is required")
	}
	return q.reader.ListDead(ctx, msg.Limit)
}

type GetHealthQuery struct {
	reader HealthReader
}

func NewGetHealthQuery(reader HealthReader) *GetHealthQuery {
	return &GetHealthQuery{reader: reader}
}

func (q *GetHealthQuery) Query(ctx context.Context, msg GetHealthMessage) (core.HealthSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.HealthSnapshot{}, queryDependencyError("query: health reader is required")
	}
	return q.reader.Health(ctx)
}
