package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// EventStore is the relational EventLog backend. Deduplication rides on the
// unique index over the provider identifier: the insert either lands or
// collides, there is no read-then-write window. Mutations run in a
// transaction so the status machine is enforced against the committed row.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, sqlstoreBadInput("sqlstore: bun db is required", nil)
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, sqlstoreWrapInternal(err, "sqlstore: invalid webhook event repository wiring", nil)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *EventStore) Append(
	ctx context.Context,
	event core.WebhookEvent,
) (core.WebhookEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, false, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.SourceKey = strings.TrimSpace(event.SourceKey)
	if event.ID == "" || event.SourceKey == "" {
		return core.WebhookEvent{}, false, sqlstoreBadInput("sqlstore: event id and source key are required", nil)
	}
	if event.Status == "" {
		event.Status = core.EventStatusPending
	}
	if !core.IsValidStatus(event.Status) {
		return core.WebhookEvent{}, false, sqlstoreBadInput("sqlstore: invalid event status", map[string]any{
			"event_id": event.ID,
			"status":   event.Status,
		})
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	record, err := newWebhookEventRecord(event)
	if err != nil {
		return core.WebhookEvent{}, false, err
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, event.ID)
			if getErr != nil {
				return core.WebhookEvent{}, false, getErr
			}
			return existing, true, nil
		}
		return core.WebhookEvent{}, false, sqlstoreWrapInternal(err, "sqlstore: insert webhook event", map[string]any{
			"event_id": event.ID,
		})
	}
	stored, err := record.toDomain()
	if err != nil {
		return core.WebhookEvent{}, false, err
	}
	return stored, false, nil
}

func (s *EventStore) Update(
	ctx context.Context,
	id string,
	mutation core.EventMutation,
) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.WebhookEvent{}, sqlstoreBadInput("sqlstore: event id is required", nil)
	}

	var updated core.WebhookEvent
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &webhookEventRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sqlstoreNotFound("sqlstore: event not found", map[string]any{
					"event_id": id,
				})
			}
			return sqlstoreWrapInternal(err, "sqlstore: load webhook event", map[string]any{
				"event_id": id,
			})
		}

		current, err := record.toDomain()
		if err != nil {
			return err
		}
		next, err := core.ApplyMutation(current, mutation)
		if err != nil {
			return sqlstoreWrapError(
				err,
				goerrors.CategoryConflict,
				"sqlstore: event mutation rejected",
				http.StatusConflict,
				core.IngestErrorDuplicate,
				map[string]any{"event_id": id},
			)
		}

		if _, err := tx.NewUpdate().
			Model((*webhookEventRecord)(nil)).
			Set("status = ?", next.Status).
			Set("attempts = ?", next.Attempts).
			Set("next_eligible_at = ?", next.NextEligibleAt).
			Set("last_error = ?", next.LastError).
			Set("last_attempt_at = ?", next.LastAttemptAt).
			Set("terminal_at = ?", next.TerminalAt).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return sqlstoreWrapInternal(err, "sqlstore: update webhook event", map[string]any{
				"event_id": id,
			})
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return updated, nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookEvent{}, sqlstoreNotFound("sqlstore: event not found", map[string]any{
				"event_id": id,
			})
		}
		return core.WebhookEvent{}, sqlstoreWrapInternal(err, "sqlstore: load webhook event", map[string]any{
			"event_id": id,
		})
	}
	return record.toDomain()
}

func (s *EventStore) ScanNonTerminal(ctx context.Context) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	records := []*webhookEventRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status NOT IN (?)", bun.In([]string{core.EventStatusSucceeded, core.EventStatusDead})).
		Order("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, sqlstoreWrapInternal(err, "sqlstore: scan non-terminal events", nil)
	}
	return recordsToDomain(records)
}

func (s *EventStore) ScanBySource(
	ctx context.Context,
	sourceKey string,
	afterCreatedAt time.Time,
) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	records := []*webhookEventRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.source_key = ?", strings.TrimSpace(sourceKey)).
		Where("?TableAlias.status NOT IN (?)", bun.In([]string{core.EventStatusSucceeded, core.EventStatusDead})).
		Order("seq ASC")
	if !afterCreatedAt.IsZero() {
		query = query.Where("?TableAlias.created_at > ?", afterCreatedAt.UTC())
	}
	if err := query.Scan(ctx); err != nil {
		return nil, sqlstoreWrapInternal(err, "sqlstore: scan source events", map[string]any{
			"source_key": sourceKey,
		})
	}
	return recordsToDomain(records)
}

func (s *EventStore) ListDead(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	records := []*webhookEventRecord{}
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", core.EventStatusDead).
		Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, sqlstoreWrapInternal(err, "sqlstore: list dead events", nil)
	}
	return recordsToDomain(records)
}

func (s *EventStore) PurgeSucceeded(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, sqlstoreInternal("sqlstore: event store is not configured", nil)
	}
	result, err := s.db.NewDelete().
		Model((*webhookEventRecord)(nil)).
		Where("status = ?", core.EventStatusSucceeded).
		Where("terminal_at IS NOT NULL").
		Where("terminal_at < ?", olderThan.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, sqlstoreWrapInternal(err, "sqlstore: purge succeeded events", nil)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, sqlstoreWrapInternal(err, "sqlstore: purge row count", nil)
	}
	return int(affected), nil
}

func recordsToDomain(records []*webhookEventRecord) ([]core.WebhookEvent, error) {
	out := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		event, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
