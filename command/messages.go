package command

import (
	"strings"
	"time"
)

const (
	TypeIngest         = "ingest.command.ingest"
	TypeRetryNow       = "ingest.command.retry_now"
	TypePurgeSucceeded = "ingest.command.purge_succeeded"
	TypeReplaySource   = "ingest.command.replay_source"
	TypeMarkEventDead  = "ingest.command.mark_event_dead"
)

// IngestMessage carries one raw webhook notification into the pipeline. The
// event type is a hint; an empty value lets the decoder infer it from the
// payload.
type IngestMessage struct {
	SourceKey string
	EventType string
	Body      []byte
}

func (IngestMessage) Type() string { return TypeIngest }

func (m IngestMessage) Validate() error {
	if strings.TrimSpace(m.SourceKey) == "" {
		return commandValidationError("source_key", "source key is required")
	}
	if len(m.Body) == 0 {
		return commandValidationError("body", "request body is required")
	}
	return nil
}

// RetryNowMessage clears every retry backoff gate and forces an immediate
// re-scan of all sources.
type RetryNowMessage struct{}

func (RetryNowMessage) Type() string { return TypeRetryNow }

func (RetryNowMessage) Validate() error { return nil }

// PurgeSucceededMessage removes succeeded events older than the given
// retention window. A zero OlderThan falls back to the configured retention.
type PurgeSucceededMessage struct {
	OlderThan time.Duration
}

func (PurgeSucceededMessage) Type() string { return TypePurgeSucceeded }

func (m PurgeSucceededMessage) Validate() error {
	if m.OlderThan < 0 {
		return commandValidationError("older_than", "retention window cannot be negative")
	}
	return nil
}

// ReplaySourceMessage forces a re-scan of one source's queue, typically after
// an operator fixed the condition that stalled it.
type ReplaySourceMessage struct {
	SourceKey string
}

func (ReplaySourceMessage) Type() string { return TypeReplaySource }

func (m ReplaySourceMessage) Validate() error {
	if strings.TrimSpace(m.SourceKey) == "" {
		return commandValidationError("source_key", "source key is required")
	}
	return nil
}

// MarkEventDeadMessage dead-letters one retryable event by operator decision.
type MarkEventDeadMessage struct {
	EventID string
	Reason  string
}

func (MarkEventDeadMessage) Type() string { return TypeMarkEventDead }

func (m MarkEventDeadMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	return nil
}
