package sqlstore

import (
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/uptrace/bun"
)

// webhookEventRecord is the relational shape of one event. Seq is assigned by
// the database and preserves durable append order across processes; the
// provider identifier stays unique so redeliveries collapse on insert.
type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	Seq            int64      `bun:"seq,pk,autoincrement"`
	ID             string     `bun:"id,notnull,unique"`
	SourceKey      string     `bun:"source_key,notnull"`
	EventType      string     `bun:"event_type,notnull"`
	Payload        []byte     `bun:"payload,type:jsonb,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull,default:0"`
	NextEligibleAt *time.Time `bun:"next_eligible_at,nullzero"`
	LastError      string     `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastAttemptAt  *time.Time `bun:"last_attempt_at,nullzero"`
	TerminalAt     *time.Time `bun:"terminal_at,nullzero"`
}

func newWebhookEventRecord(event core.WebhookEvent) (*webhookEventRecord, error) {
	payload, err := core.EncodePayload(event.Payload)
	if err != nil {
		return nil, sqlstoreWrapInternal(err, "sqlstore: encode payload", map[string]any{
			"event_id": event.ID,
		})
	}
	return &webhookEventRecord{
		ID:             event.ID,
		SourceKey:      event.SourceKey,
		EventType:      string(event.Type),
		Payload:        payload,
		Status:         event.Status,
		Attempts:       event.Attempts,
		NextEligibleAt: cloneTime(event.NextEligibleAt),
		LastError:      event.LastError,
		CreatedAt:      event.CreatedAt,
		LastAttemptAt:  cloneTime(event.LastAttemptAt),
		TerminalAt:     cloneTime(event.TerminalAt),
	}, nil
}

func (r *webhookEventRecord) toDomain() (core.WebhookEvent, error) {
	if r == nil {
		return core.WebhookEvent{}, sqlstoreInternal("sqlstore: webhook event record is nil", nil)
	}
	payload, err := core.DecodePayload(core.EventType(r.EventType), r.Payload)
	if err != nil {
		return core.WebhookEvent{}, sqlstoreWrapInternal(err, "sqlstore: decode payload", map[string]any{
			"event_id": r.ID,
		})
	}
	return core.WebhookEvent{
		ID:             r.ID,
		SourceKey:      r.SourceKey,
		Type:           core.EventType(r.EventType),
		Payload:        payload,
		Status:         r.Status,
		Attempts:       r.Attempts,
		NextEligibleAt: cloneTime(r.NextEligibleAt),
		LastError:      r.LastError,
		CreatedAt:      r.CreatedAt,
		LastAttemptAt:  cloneTime(r.LastAttemptAt),
		TerminalAt:     cloneTime(r.TerminalAt),
	}, nil
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
