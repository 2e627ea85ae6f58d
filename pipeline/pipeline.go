package pipeline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/envelope"
)

// Pipeline owns the durable event log, the per-source dispatch workers, the
// retry scheduler, and the health monitor. It has no process-wide state;
// multiple independent instances can coexist, which is how the tests run.
type Pipeline struct {
	config      core.Config
	log         core.EventLog
	resolver    core.DependencyResolver
	decoder     *envelope.Decoder
	retryPolicy RetryPolicy
	logger      core.Logger
	provider    core.LoggerProvider
	metrics     core.MetricsRecorder
	now         func() time.Time

	mu       sync.Mutex
	handlers map[core.EventType]core.EventHandler
	workers  map[string]*sourceWorker
	progress map[string]sourceProgress
	started  bool
	stopping bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

type sourceProgress struct {
	terminal  int
	changedAt time.Time
}

// IngestResult is what the transport layer acknowledges to the provider.
// Duplicate appends are acknowledged as success without re-queueing.
type IngestResult struct {
	EventID   string
	SourceKey string
	EventType core.EventType
	Status    string
	Duplicate bool
}

func New(cfg core.Config, opts ...Option) (*Pipeline, error) {
	cfg = normalizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, pipelineWrapError(
			err,
			goerrors.CategoryValidation,
			"pipeline: invalid configuration",
			http.StatusBadRequest,
			core.IngestErrorBadInput,
			nil,
		)
	}
	b := defaultBuilder(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	if b.log == nil {
		return nil, pipelineInternal("pipeline: event log is required", nil)
	}

	handlers := make(map[core.EventType]core.EventHandler, len(b.handlers))
	for eventType, handler := range b.handlers {
		if handler != nil {
			handlers[eventType] = handler
		}
	}

	return &Pipeline{
		config:      cfg,
		log:         b.log,
		resolver:    b.resolver,
		decoder:     b.decoder,
		retryPolicy: b.retryPolicy,
		logger:      b.logger,
		provider:    b.provider,
		metrics:     b.metrics,
		now:         b.now,
		handlers:    handlers,
		workers:     map[string]*sourceWorker{},
		progress:    map[string]sourceProgress{},
	}, nil
}

// RegisterHandler wires the domain handler for one event type. Replacing an
// existing handler is rejected; register once during composition.
func (p *Pipeline) RegisterHandler(eventType core.EventType, handler core.EventHandler) error {
	if p == nil {
		return pipelineInternal("pipeline: pipeline is nil", nil)
	}
	if handler == nil {
		return pipelineBadInput("pipeline: handler is nil", nil)
	}
	if eventType == "" || eventType == core.EventTypeUnknown {
		return pipelineBadInput("pipeline: handler event type is required", nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[eventType]; exists {
		return pipelineConflict("pipeline: handler already registered", map[string]any{
			"event_type": string(eventType),
		})
	}
	p.handlers[eventType] = handler
	return nil
}

// Start replays every non-terminal event from the log and spins up source
// workers before the pipeline accepts new traffic.
func (p *Pipeline) Start(ctx context.Context) error {
	if p == nil {
		return pipelineInternal("pipeline: pipeline is nil", nil)
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return pipelineConflict("pipeline: already started", nil)
	}
	p.stop = make(chan struct{})
	p.stopping = false
	p.started = true
	p.mu.Unlock()

	recovered, err := p.recover(ctx)
	if err != nil {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return err
	}

	if p.config.Health.Interval > 0 {
		p.wg.Add(1)
		go p.runMonitor()
	}

	p.logInfo(ctx, "pipeline started", map[string]any{
		"recovered_events": recovered,
		"service_name":     p.config.ServiceName,
	})
	return nil
}

// Stop lets each worker finish its current event, then waits for all of them
// until ctx expires.
func (p *Pipeline) Stop(ctx context.Context) error {
	if p == nil {
		return pipelineInternal("pipeline: pipeline is nil", nil)
	}
	p.mu.Lock()
	if !p.started || p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	close(p.stop)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return pipelineWrapError(
			ctx.Err(),
			goerrors.CategoryOperation,
			"pipeline: shutdown wait interrupted",
			http.StatusServiceUnavailable,
			core.IngestErrorInternal,
			nil,
		)
	}

	p.mu.Lock()
	p.started = false
	p.workers = map[string]*sourceWorker{}
	p.mu.Unlock()
	p.logInfo(ctx, "pipeline stopped", nil)
	return nil
}

// Ingest validates, dedupes, and durably records one inbound notification.
// Success means the event is on the log; eventual processing outcome is an
// internal concern the caller never sees.
func (p *Pipeline) Ingest(
	ctx context.Context,
	sourceKey string,
	typeHint string,
	body []byte,
) (IngestResult, error) {
	if p == nil {
		return IngestResult{}, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	startedAt := p.clock()

	decoder := p.decoder
	if decoder == nil {
		decoder = envelope.NewDecoder()
	}
	event, err := decoder.Decode(sourceKey, typeHint, body)
	if err != nil {
		p.observe(ctx, startedAt, "ingest", err, map[string]any{
			"source_key": sourceKey,
			"event_type": typeHint,
		})
		return IngestResult{}, err
	}

	stored, duplicate, err := p.log.Append(ctx, event)
	if err != nil {
		wrapped := pipelineWrapError(
			err,
			goerrors.CategoryOperation,
			"pipeline: durable append failed",
			http.StatusServiceUnavailable,
			core.IngestErrorRetryable,
			map[string]any{"source_key": event.SourceKey, "event_id": event.ID},
		)
		p.observe(ctx, startedAt, "ingest", wrapped, map[string]any{
			"source_key": event.SourceKey,
			"event_id":   event.ID,
		})
		return IngestResult{}, wrapped
	}

	if !duplicate {
		p.admit(stored.SourceKey)
	}

	p.observe(ctx, startedAt, "ingest", nil, map[string]any{
		"source_key": stored.SourceKey,
		"event_id":   stored.ID,
		"event_type": string(stored.Type),
		"deduped":    duplicate,
	})
	return IngestResult{
		EventID:   stored.ID,
		SourceKey: stored.SourceKey,
		EventType: stored.Type,
		Status:    stored.Status,
		Duplicate: duplicate,
	}, nil
}

// RetryNow clears the backoff gate for every failed_retryable event and kicks
// all workers, forcing immediate re-evaluation.
func (p *Pipeline) RetryNow(ctx context.Context) (int, error) {
	if p == nil {
		return 0, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	events, err := p.log.ScanNonTerminal(ctx)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, event := range events {
		if event.Status != core.EventStatusRetryable || event.NextEligibleAt == nil {
			continue
		}
		if _, err := p.log.Update(ctx, event.ID, core.EventMutation{ClearNextEligible: true}); err != nil {
			p.logError(ctx, "retry-now gate clear failed", map[string]any{
				"event_id": event.ID,
				"error":    err.Error(),
			})
			continue
		}
		cleared++
	}
	p.kickAll()
	p.logInfo(ctx, "retry-now forced", map[string]any{"cleared": cleared})
	return cleared, nil
}

// PurgeSucceeded removes succeeded events older than the given age. A zero or
// negative age falls back to the configured retention. Dead events are kept
// for inspection regardless.
func (p *Pipeline) PurgeSucceeded(ctx context.Context, olderThan time.Duration) (int, error) {
	if p == nil {
		return 0, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	if olderThan <= 0 {
		olderThan = p.config.Retention.SucceededMaxAge
	}
	cutoff := p.clock().Add(-olderThan)
	purged, err := p.log.PurgeSucceeded(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.logInfo(ctx, "retention purge completed", map[string]any{
		"purged": purged,
		"cutoff": cutoff,
	})
	return purged, nil
}

// ReplaySource forces a re-scan of one source's queue, creating its worker if
// needed. The health monitor uses this to unstick sources.
func (p *Pipeline) ReplaySource(ctx context.Context, sourceKey string) error {
	if p == nil {
		return pipelineInternal("pipeline: pipeline is nil", nil)
	}
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey == "" {
		return pipelineBadInput("pipeline: source key is required", nil)
	}
	p.admit(sourceKey)
	p.logInfo(ctx, "source replay kicked", map[string]any{"source_key": sourceKey})
	return nil
}

// MarkDead dead-letters a failed_retryable event by operator decision.
// Pending and terminal events are rejected: the lifecycle stays monotone.
func (p *Pipeline) MarkDead(ctx context.Context, id string, reason string) (core.WebhookEvent, error) {
	if p == nil {
		return core.WebhookEvent{}, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	event, err := p.log.Get(ctx, id)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	if event.Status != core.EventStatusRetryable {
		return core.WebhookEvent{}, pipelineConflict("pipeline: only failed events can be dead-lettered", map[string]any{
			"event_id": id,
			"status":   event.Status,
		})
	}
	dead := core.EventStatusDead
	now := p.clock()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "dead-lettered by operator"
	}
	updated, err := p.log.Update(ctx, id, core.EventMutation{
		Status:            &dead,
		TerminalAt:        &now,
		LastError:         &reason,
		ClearNextEligible: true,
	})
	if err != nil {
		return core.WebhookEvent{}, err
	}
	p.noteProgress(updated.SourceKey)
	p.recordCounter(ctx, "ingest.events.dead.total", 1, map[string]string{
		"source_key": updated.SourceKey,
		"cause":      "operator",
	})
	return updated, nil
}

// GetEvent exposes one event record for the read side.
func (p *Pipeline) GetEvent(ctx context.Context, id string) (core.WebhookEvent, error) {
	if p == nil {
		return core.WebhookEvent{}, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	return p.log.Get(ctx, id)
}

// ListDead exposes the dead-letter queue for operator inspection.
func (p *Pipeline) ListDead(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if p == nil {
		return nil, pipelineInternal("pipeline: pipeline is nil", nil)
	}
	return p.log.ListDead(ctx, limit)
}

func (p *Pipeline) handlerFor(eventType core.EventType) core.EventHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[eventType]
}

func (p *Pipeline) clock() time.Time {
	if p != nil && p.now != nil {
		return p.now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pipeline) noteProgress(sourceKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := p.progress[sourceKey]
	entry.terminal++
	entry.changedAt = p.clockLocked()
	p.progress[sourceKey] = entry
}

// clockLocked exists because clock() is safe to call with p.mu held; the
// indirection keeps that explicit.
func (p *Pipeline) clockLocked() time.Time {
	if p.now != nil {
		return p.now().UTC()
	}
	return time.Now().UTC()
}
