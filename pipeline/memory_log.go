package pipeline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
)

// InMemoryEventLog is the reference EventLog used in tests and as the default
// backing store when no durable log is wired. Append order doubles as the
// durable record order within each source.
type InMemoryEventLog struct {
	mu     sync.Mutex
	events map[string]core.WebhookEvent
	order  []string
}

func NewInMemoryEventLog() *InMemoryEventLog {
	return &InMemoryEventLog{
		events: map[string]core.WebhookEvent{},
	}
}

func (l *InMemoryEventLog) Append(
	_ context.Context,
	event core.WebhookEvent,
) (core.WebhookEvent, bool, error) {
	if l == nil {
		return core.WebhookEvent{}, false, pipelineInternal("pipeline: event log is nil", nil)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.SourceKey = strings.TrimSpace(event.SourceKey)
	if event.ID == "" || event.SourceKey == "" {
		return core.WebhookEvent{}, false, pipelineBadInput("pipeline: event id and source key are required", nil)
	}
	if event.Status == "" {
		event.Status = core.EventStatusPending
	}
	if !core.IsValidStatus(event.Status) {
		return core.WebhookEvent{}, false, pipelineBadInput("pipeline: invalid event status", map[string]any{
			"event_id": event.ID,
			"status":   event.Status,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.events[event.ID]; ok {
		return existing.Clone(), true, nil
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	l.events[event.ID] = event.Clone()
	l.order = append(l.order, event.ID)
	return event.Clone(), false, nil
}

func (l *InMemoryEventLog) Update(
	_ context.Context,
	id string,
	mutation core.EventMutation,
) (core.WebhookEvent, error) {
	if l == nil {
		return core.WebhookEvent{}, pipelineInternal("pipeline: event log is nil", nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.WebhookEvent{}, pipelineBadInput("pipeline: event id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.events[id]
	if !ok {
		return core.WebhookEvent{}, pipelineNotFound("pipeline: event not found", map[string]any{
			"event_id": id,
		})
	}
	updated, err := core.ApplyMutation(existing, mutation)
	if err != nil {
		return core.WebhookEvent{}, pipelineWrapError(
			err,
			goerrors.CategoryConflict,
			"pipeline: event mutation rejected",
			http.StatusConflict,
			core.IngestErrorDuplicate,
			map[string]any{"event_id": id},
		)
	}
	l.events[id] = updated.Clone()
	return updated, nil
}

func (l *InMemoryEventLog) Get(_ context.Context, id string) (core.WebhookEvent, error) {
	if l == nil {
		return core.WebhookEvent{}, pipelineInternal("pipeline: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[strings.TrimSpace(id)]
	if !ok {
		return core.WebhookEvent{}, pipelineNotFound("pipeline: event not found", map[string]any{
			"event_id": id,
		})
	}
	return event.Clone(), nil
}

func (l *InMemoryEventLog) ScanNonTerminal(_ context.Context) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, pipelineInternal("pipeline: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.WebhookEvent, 0, len(l.order))
	for _, id := range l.order {
		event := l.events[id]
		if event.Terminal() {
			continue
		}
		out = append(out, event.Clone())
	}
	return out, nil
}

func (l *InMemoryEventLog) ScanBySource(
	_ context.Context,
	sourceKey string,
	afterCreatedAt time.Time,
) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, pipelineInternal("pipeline: event log is nil", nil)
	}
	sourceKey = strings.TrimSpace(sourceKey)
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.WebhookEvent{}
	for _, id := range l.order {
		event := l.events[id]
		if event.SourceKey != sourceKey || event.Terminal() {
			continue
		}
		if !afterCreatedAt.IsZero() && !event.CreatedAt.After(afterCreatedAt) {
			continue
		}
		out = append(out, event.Clone())
	}
	return out, nil
}

func (l *InMemoryEventLog) ListDead(_ context.Context, limit int) ([]core.WebhookEvent, error) {
	if l == nil {
		return nil, pipelineInternal("pipeline: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []core.WebhookEvent{}
	for i := len(l.order) - 1; i >= 0; i-- {
		event := l.events[l.order[i]]
		if event.Status != core.EventStatusDead {
			continue
		}
		out = append(out, event.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (l *InMemoryEventLog) PurgeSucceeded(_ context.Context, olderThan time.Time) (int, error) {
	if l == nil {
		return 0, pipelineInternal("pipeline: event log is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.order[:0]
	purged := 0
	for _, id := range l.order {
		event := l.events[id]
		purgeable := event.Status == core.EventStatusSucceeded &&
			event.TerminalAt != nil &&
			event.TerminalAt.Before(olderThan)
		if purgeable {
			delete(l.events, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
	return purged, nil
}

var _ core.EventLog = (*InMemoryEventLog)(nil)
