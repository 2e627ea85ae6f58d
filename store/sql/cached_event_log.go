package sqlstore

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const eventCacheKeyPrefix = "go-ingest::webhook_event::v1"

// CachedEventLog layers a read-through cache over an EventLog for the byte
// lookups (Get). Every write invalidates the event's key; scans always hit
// the base log because they drive dispatch decisions and must see committed
// state.
type CachedEventLog struct {
	base  core.EventLog
	cache repositorycache.CacheService
}

func NewCachedEventLog(
	base core.EventLog,
	cacheService repositorycache.CacheService,
) (*CachedEventLog, error) {
	if base == nil {
		return nil, sqlstoreBadInput("sqlstore: base event log is required", nil)
	}
	if cacheService == nil {
		return nil, sqlstoreBadInput("sqlstore: cache service is required", nil)
	}
	return &CachedEventLog{base: base, cache: cacheService}, nil
}

// EventCacheKey returns the deterministic cache key for one event:
// go-ingest::webhook_event::v1::<id> with the id URL-path escaped.
func EventCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", sqlstoreBadInput("sqlstore: event id is required", nil)
	}
	return eventCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (l *CachedEventLog) Append(
	ctx context.Context,
	event core.WebhookEvent,
) (core.WebhookEvent, bool, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.WebhookEvent{}, false, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	stored, duplicate, err := l.base.Append(ctx, event)
	if err != nil {
		return core.WebhookEvent{}, false, err
	}
	if err := l.invalidate(ctx, stored.ID); err != nil {
		return core.WebhookEvent{}, false, err
	}
	return stored, duplicate, nil
}

func (l *CachedEventLog) Update(
	ctx context.Context,
	id string,
	mutation core.EventMutation,
) (core.WebhookEvent, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.WebhookEvent{}, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	updated, err := l.base.Update(ctx, id, mutation)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	if err := l.invalidate(ctx, id); err != nil {
		return core.WebhookEvent{}, err
	}
	return updated, nil
}

func (l *CachedEventLog) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.WebhookEvent{}, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	cacheKey, err := EventCacheKey(id)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	event, err := repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (core.WebhookEvent, error) {
		return l.base.Get(ctx, id)
	})
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return event.Clone(), nil
}

func (l *CachedEventLog) ScanNonTerminal(ctx context.Context) ([]core.WebhookEvent, error) {
	if l == nil || l.base == nil {
		return nil, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	return l.base.ScanNonTerminal(ctx)
}

func (l *CachedEventLog) ScanBySource(
	ctx context.Context,
	sourceKey string,
	afterCreatedAt time.Time,
) ([]core.WebhookEvent, error) {
	if l == nil || l.base == nil {
		return nil, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	return l.base.ScanBySource(ctx, sourceKey, afterCreatedAt)
}

func (l *CachedEventLog) ListDead(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if l == nil || l.base == nil {
		return nil, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	return l.base.ListDead(ctx, limit)
}

func (l *CachedEventLog) PurgeSucceeded(ctx context.Context, olderThan time.Time) (int, error) {
	if l == nil || l.base == nil {
		return 0, sqlstoreInternal("sqlstore: cached event log is not configured", nil)
	}
	// purged ids are unknown; stale Get hits age out with the cache TTL
	return l.base.PurgeSucceeded(ctx, olderThan)
}

func (l *CachedEventLog) invalidate(ctx context.Context, id string) error {
	cacheKey, err := EventCacheKey(id)
	if err != nil {
		return err
	}
	if err := l.cache.Delete(ctx, cacheKey); err != nil {
		return sqlstoreWrapInternal(err, "sqlstore: invalidate event cache", map[string]any{
			"event_id": id,
		})
	}
	return nil
}
