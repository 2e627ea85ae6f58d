package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDIngest  = "ingest.webhook.ingest"
	JobIDRetry   = "ingest.webhook.retry"
	JobIDCleanup = "ingest.webhook.cleanup"
)

const (
	paramSourceKey = "source_key"
	paramEventType = "event_type"
	paramBody      = "body"
)

// RetryPolicy bounds queue-level retry behavior so a poisoned delivery never
// loops forever. The pipeline keeps its own per-event ceiling; this policy
// mirrors it at the queue boundary.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// PolicyFromConfig derives queue retry bounds from the pipeline config so
// both layers dead-letter on the same attempt number.
func PolicyFromConfig(cfg core.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.MaxRetries + 1,
		MaxDelay:        cfg.Backoff.Max,
		DeadLetterOnMax: true,
	}
}

// Normalize clamps nack options for the given attempt: bounded delay, no
// requeue once the ceiling is reached, dead-letter instead of dropping.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// IngestRequest is one webhook notification traveling through a go-job queue
// instead of arriving over HTTP.
type IngestRequest struct {
	SourceKey string
	EventType string
	Body      []byte
	// IdempotencyKey dedupes at the queue; the event log dedupes again by
	// provider event id, so double-delivery is harmless either way.
	IdempotencyKey string
}

// ToExecutionMessage maps an ingest request onto the go-job wire contract.
func ToExecutionMessage(req IngestRequest) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDIngest,
		Parameters: map[string]any{
			paramSourceKey: strings.TrimSpace(req.SourceKey),
			paramEventType: strings.TrimSpace(req.EventType),
			paramBody:      string(req.Body),
		},
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromExecutionMessage recovers the ingest request from a queue delivery.
func FromExecutionMessage(msg *job.ExecutionMessage) (IngestRequest, error) {
	if msg == nil {
		return IngestRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	sourceKey, _ := msg.Parameters[paramSourceKey].(string)
	if strings.TrimSpace(sourceKey) == "" {
		return IngestRequest{}, fmt.Errorf("gojob: source key parameter is required")
	}
	eventType, _ := msg.Parameters[paramEventType].(string)
	body, _ := msg.Parameters[paramBody].(string)
	return IngestRequest{
		SourceKey:      strings.TrimSpace(sourceKey),
		EventType:      strings.TrimSpace(eventType),
		Body:           []byte(body),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
	}, nil
}

// Ingestor is the slice of the pipeline the queue handler needs.
type Ingestor interface {
	Ingest(ctx context.Context, sourceKey string, typeHint string, body []byte) (pipeline.IngestResult, error)
}

type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (e *Enqueuer) EnqueueIngest(ctx context.Context, req IngestRequest) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(req.SourceKey) == "" {
		return fmt.Errorf("gojob: source key is required")
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(req))
}

// Handler drains ingest deliveries into the pipeline. Structural garbage is
// dead-lettered at the queue; transient append failures requeue within the
// policy bounds.
type Handler struct {
	pipeline Ingestor
	policy   RetryPolicy
}

func NewHandler(p Ingestor, policy RetryPolicy) *Handler {
	return &Handler{pipeline: p, policy: policy}
}

func (h *Handler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if h == nil || h.pipeline == nil {
		return fmt.Errorf("gojob: ingest pipeline is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	req, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		_ = delivery.Nack(ctx, h.policy.Normalize(queue.NackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}, attempt))
		return err
	}

	_, err = h.pipeline.Ingest(ctx, req.SourceKey, req.EventType, req.Body)
	if err == nil {
		return delivery.Ack(ctx)
	}
	if core.IsBadInput(err) {
		// The event log never records structural garbage; rejecting the
		// delivery again would produce the same outcome.
		return delivery.Nack(ctx, h.policy.Normalize(queue.NackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}, attempt))
	}
	return delivery.Nack(ctx, h.policy.Normalize(queue.NackOptions{
		Requeue: true,
		Reason:  err.Error(),
	}, attempt))
}
