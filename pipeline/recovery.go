package pipeline

import (
	"context"

	"github.com/goliatone/go-ingest/core"
)

// recover rebuilds the dispatch state from the durable log after a restart.
// Events stuck in_flight by a crash are demoted to pending so they re-run;
// handlers are expected to tolerate the resulting at-least-once delivery.
func (p *Pipeline) recover(ctx context.Context) (int, error) {
	events, err := p.log.ScanNonTerminal(ctx)
	if err != nil {
		return 0, err
	}

	sources := map[string]struct{}{}
	for _, event := range events {
		if event.Status == core.EventStatusInFlight {
			pending := core.EventStatusPending
			if _, err := p.log.Update(ctx, event.ID, core.EventMutation{Status: &pending}); err != nil {
				p.logError(ctx, "in-flight demotion failed during recovery", map[string]any{
					"event_id": event.ID,
					"error":    err.Error(),
				})
				continue
			}
		}
		sources[event.SourceKey] = struct{}{}
	}

	for sourceKey := range sources {
		p.admit(sourceKey)
	}

	if len(events) > 0 {
		p.logInfo(ctx, "recovery replay scheduled", map[string]any{
			"events":  len(events),
			"sources": len(sources),
		})
	}
	return len(events), nil
}
