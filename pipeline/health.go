package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/goliatone/go-ingest/core"
)

// Health samples the current state of the durable log and reports queue lag,
// oldest pending age, dead-letter totals, and sources that stopped making
// progress while work remained queued.
func (p *Pipeline) Health(ctx context.Context) (core.HealthSnapshot, error) {
	if p == nil {
		return core.HealthSnapshot{}, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	events, err := p.log.ScanNonTerminal(ctx)
	if err != nil {
		return core.HealthSnapshot{}, err
	}
	dead, err := p.log.ListDead(ctx, 0)
	if err != nil {
		return core.HealthSnapshot{}, err
	}
	return p.computeSnapshot(events, len(dead)), nil
}

func (p *Pipeline) computeSnapshot(events []core.WebhookEvent, deadCount int) core.HealthSnapshot {
	now := p.clock()
	snapshot := core.HealthSnapshot{
		DeadCount: deadCount,
		SampledAt: now,
	}

	var oldestPending time.Time
	queued := map[string]struct{}{}
	for _, event := range events {
		queued[event.SourceKey] = struct{}{}
		switch event.Status {
		case core.EventStatusPending:
			snapshot.PendingCount++
			if oldestPending.IsZero() || event.CreatedAt.Before(oldestPending) {
				oldestPending = event.CreatedAt
			}
			if gateOpen(event, now) {
				snapshot.QueueLag++
			}
		case core.EventStatusInFlight:
			snapshot.InFlightCount++
		case core.EventStatusRetryable:
			snapshot.RetryableCount++
			if gateOpen(event, now) {
				snapshot.QueueLag++
			}
		}
	}
	if !oldestPending.IsZero() {
		snapshot.OldestPendingAge = now.Sub(oldestPending)
	}

	p.mu.Lock()
	for sourceKey := range queued {
		entry, tracked := p.progress[sourceKey]
		if !tracked || entry.changedAt.IsZero() {
			continue
		}
		if now.Sub(entry.changedAt) >= p.config.Health.StuckAfter {
			snapshot.StuckSources = append(snapshot.StuckSources, sourceKey)
		}
	}
	p.mu.Unlock()
	sort.Strings(snapshot.StuckSources)

	snapshot.Healthy = snapshot.QueueLag <= p.config.Health.LagThreshold &&
		len(snapshot.StuckSources) == 0
	return snapshot
}

// gateOpen reports whether an event is past its backoff gate. Queue lag
// counts work the dispatcher could pick up right now; events waiting out a
// legitimate backoff window are not lag.
func gateOpen(event core.WebhookEvent, now time.Time) bool {
	return event.NextEligibleAt == nil || !event.NextEligibleAt.After(now)
}

// runMonitor periodically samples health, emits metrics, and kicks stuck
// sources so transient stalls self-heal without operator involvement.
func (p *Pipeline) runMonitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.Health.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sampleHealth(context.Background())
		}
	}
}

func (p *Pipeline) sampleHealth(ctx context.Context) {
	snapshot, err := p.Health(ctx)
	if err != nil {
		p.logError(ctx, "health sample failed", map[string]any{"error": err.Error()})
		return
	}

	p.recordHistogram(ctx, "ingest.queue.lag", float64(snapshot.QueueLag), nil)
	p.recordHistogram(ctx, "ingest.queue.oldest_pending_seconds",
		snapshot.OldestPendingAge.Seconds(), nil)

	if !snapshot.Healthy {
		p.logError(ctx, "pipeline unhealthy", map[string]any{
			"queue_lag":          snapshot.QueueLag,
			"oldest_pending_age": snapshot.OldestPendingAge.String(),
			"dead_count":         snapshot.DeadCount,
			"stuck_sources":      snapshot.StuckSources,
		})
	}

	for _, sourceKey := range snapshot.StuckSources {
		if err := p.ReplaySource(ctx, sourceKey); err != nil {
			p.logError(ctx, "stuck source replay failed", map[string]any{
				"source_key": sourceKey,
				"error":      err.Error(),
			})
		}
	}
}
