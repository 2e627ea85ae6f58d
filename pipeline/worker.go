package pipeline

import (
	"context"
	"time"

	"github.com/goliatone/go-ingest/core"
)

// sourceWorker serializes processing for one source key. The kick channel is
// buffered so admits never block the ingest path.
type sourceWorker struct {
	source string
	kick   chan struct{}
}

// kickCapacity sizes the per-source wake-up buffer from config. Kicks beyond
// the buffer coalesce with the ones already queued.
func (p *Pipeline) kickCapacity() int {
	if p.config.WorkerBuffer > 0 {
		return p.config.WorkerBuffer
	}
	return 1
}

// admit guarantees a worker exists for the source and nudges it. Workers are
// created lazily on the first event for a source. Before Start, events only
// accumulate on the log; recovery admits their sources once dispatch is live.
func (p *Pipeline) admit(sourceKey string) {
	p.mu.Lock()
	if !p.started || p.stopping {
		p.mu.Unlock()
		return
	}
	worker, ok := p.workers[sourceKey]
	if !ok {
		worker = &sourceWorker{
			source: sourceKey,
			kick:   make(chan struct{}, p.kickCapacity()),
		}
		p.workers[sourceKey] = worker
		if _, tracked := p.progress[sourceKey]; !tracked {
			p.progress[sourceKey] = sourceProgress{changedAt: p.clockLocked()}
		}
		p.wg.Add(1)
		go p.runWorker(worker)
	}
	p.mu.Unlock()

	select {
	case worker.kick <- struct{}{}:
	default:
	}
}

func (p *Pipeline) kickAll() {
	p.mu.Lock()
	workers := make([]*sourceWorker, 0, len(p.workers))
	for _, worker := range p.workers {
		workers = append(workers, worker)
	}
	p.mu.Unlock()
	for _, worker := range workers {
		select {
		case worker.kick <- struct{}{}:
		default:
		}
	}
}

// runWorker pulls the oldest eligible event for its source, one at a time,
// in durable record order. Event n+1 never starts before event n reaches a
// terminal-for-this-attempt state.
func (p *Pipeline) runWorker(w *sourceWorker) {
	defer p.wg.Done()
	for {
		wait, processed := p.step(w.source)
		if processed {
			// graceful shutdown finishes the in-flight event, then exits
			select {
			case <-p.stop:
				return
			default:
				continue
			}
		}
		if wait <= 0 || wait > p.config.PollInterval {
			wait = p.config.PollInterval
		}
		select {
		case <-p.stop:
			return
		case <-w.kick:
		case <-time.After(wait):
		}
	}
}

// step processes at most one event and returns how long the worker should
// wait before looking again when nothing was processed.
func (p *Pipeline) step(sourceKey string) (time.Duration, bool) {
	ctx := context.Background()
	events, err := p.log.ScanBySource(ctx, sourceKey, time.Time{})
	if err != nil {
		p.logError(ctx, "source scan failed", map[string]any{
			"source_key": sourceKey,
			"error":      err.Error(),
		})
		return p.config.PollInterval, false
	}
	if len(events) == 0 {
		return p.config.PollInterval, false
	}

	// The head of the queue gates the whole source: a backing-off event
	// blocks newer events for the same source by design.
	next := events[0]
	now := p.clock()
	if next.NextEligibleAt != nil && next.NextEligibleAt.After(now) {
		return next.NextEligibleAt.Sub(now), false
	}
	p.processEvent(ctx, next)
	return 0, true
}

func (p *Pipeline) processEvent(ctx context.Context, event core.WebhookEvent) {
	startedAt := p.clock()
	attempts := event.Attempts + 1
	inFlight := core.EventStatusInFlight
	attemptAt := p.clock()
	claimed, err := p.log.Update(ctx, event.ID, core.EventMutation{
		Status:        &inFlight,
		Attempts:      &attempts,
		LastAttemptAt: &attemptAt,
	})
	if err != nil {
		p.logError(ctx, "event claim failed", map[string]any{
			"event_id":   event.ID,
			"source_key": event.SourceKey,
			"error":      err.Error(),
		})
		return
	}

	applyErr := p.apply(ctx, claimed)
	if applyErr == nil {
		p.markSucceeded(ctx, claimed, startedAt)
		return
	}
	if !core.IsRetryable(applyErr) {
		p.markDead(ctx, claimed, applyErr, "permanent")
		return
	}
	if claimed.Attempts > p.config.MaxRetries {
		p.markDead(ctx, claimed, applyErr, "retries_exhausted")
		return
	}
	p.markRetryable(ctx, claimed, applyErr)
}

// apply resolves dependencies, then invokes the type-specific handler.
// Unknown types and unregistered types are acked as no-ops so they never
// block the queue.
func (p *Pipeline) apply(ctx context.Context, event core.WebhookEvent) error {
	if event.Type == core.EventTypeUnknown {
		p.logInfo(ctx, "unknown event type acked as no-op", map[string]any{
			"event_id":   event.ID,
			"source_key": event.SourceKey,
		})
		return nil
	}
	handler := p.handlerFor(event.Type)
	if handler == nil {
		p.logInfo(ctx, "no handler registered, event acked as no-op", map[string]any{
			"event_id":   event.ID,
			"event_type": string(event.Type),
		})
		return nil
	}
	if refs := event.EntityRefs(); len(refs) > 0 && p.resolver != nil {
		if err := p.resolver.EnsureExists(ctx, refs); err != nil {
			return core.WrapRetryable(err, "pipeline: dependency resolution failed")
		}
	}
	return handler.Apply(ctx, event)
}

func (p *Pipeline) markSucceeded(ctx context.Context, event core.WebhookEvent, startedAt time.Time) {
	succeeded := core.EventStatusSucceeded
	now := p.clock()
	if _, err := p.log.Update(ctx, event.ID, core.EventMutation{
		Status:            &succeeded,
		TerminalAt:        &now,
		ClearNextEligible: true,
	}); err != nil {
		p.logError(ctx, "mark succeeded failed", map[string]any{
			"event_id": event.ID,
			"error":    err.Error(),
		})
		return
	}
	p.noteProgress(event.SourceKey)
	p.observe(ctx, startedAt, "process", nil, map[string]any{
		"event_id":   event.ID,
		"source_key": event.SourceKey,
		"event_type": string(event.Type),
		"attempts":   event.Attempts,
	})
}

func (p *Pipeline) markRetryable(ctx context.Context, event core.WebhookEvent, cause error) {
	retryable := core.EventStatusRetryable
	delay := p.nextDelay(event.Attempts)
	eligibleAt := p.clock().Add(delay)
	message := cause.Error()
	if _, err := p.log.Update(ctx, event.ID, core.EventMutation{
		Status:         &retryable,
		NextEligibleAt: &eligibleAt,
		LastError:      &message,
	}); err != nil {
		p.logError(ctx, "mark retryable failed", map[string]any{
			"event_id": event.ID,
			"error":    err.Error(),
		})
		return
	}
	p.noteProgress(event.SourceKey)
	p.recordCounter(ctx, "ingest.events.retry_scheduled.total", 1, map[string]string{
		"source_key": event.SourceKey,
	})
	p.logError(ctx, "event attempt failed, retry scheduled", map[string]any{
		"event_id":    event.ID,
		"source_key":  event.SourceKey,
		"attempts":    event.Attempts,
		"retry_delay": delay.String(),
		"error":       message,
	})
}

func (p *Pipeline) markDead(ctx context.Context, event core.WebhookEvent, cause error, reason string) {
	dead := core.EventStatusDead
	now := p.clock()
	message := cause.Error()
	if _, err := p.log.Update(ctx, event.ID, core.EventMutation{
		Status:            &dead,
		TerminalAt:        &now,
		LastError:         &message,
		ClearNextEligible: true,
	}); err != nil {
		p.logError(ctx, "mark dead failed", map[string]any{
			"event_id": event.ID,
			"error":    err.Error(),
		})
		return
	}
	p.noteProgress(event.SourceKey)
	p.recordCounter(ctx, "ingest.events.dead.total", 1, map[string]string{
		"source_key": event.SourceKey,
		"cause":      reason,
	})
	p.logError(ctx, "event dead-lettered", map[string]any{
		"event_id":   event.ID,
		"source_key": event.SourceKey,
		"attempts":   event.Attempts,
		"cause":      reason,
		"error":      message,
	})
}

func (p *Pipeline) nextDelay(attempt int) time.Duration {
	policy := p.retryPolicy
	if policy == nil {
		policy = ExponentialRetryPolicy{
			Initial: p.config.Backoff.Initial,
			Max:     p.config.Backoff.Max,
		}
	}
	return policy.NextDelay(attempt)
}
