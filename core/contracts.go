package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// EventLog is the durable, crash-surviving store of webhook events. Append is
// the deduplication boundary: a second append with an existing id returns the
// stored record and duplicate=true without touching it. All mutation goes
// through Update, which must apply ApplyMutation semantics atomically.
type EventLog interface {
	Append(ctx context.Context, event WebhookEvent) (WebhookEvent, bool, error)
	Update(ctx context.Context, id string, mutation EventMutation) (WebhookEvent, error)
	Get(ctx context.Context, id string) (WebhookEvent, error)
	// ScanNonTerminal returns every non-terminal event ordered by CreatedAt.
	ScanNonTerminal(ctx context.Context) ([]WebhookEvent, error)
	// ScanBySource returns non-terminal events for one source created after
	// the given instant, ordered by CreatedAt.
	ScanBySource(ctx context.Context, sourceKey string, afterCreatedAt time.Time) ([]WebhookEvent, error)
	// ListDead returns dead-lettered events, newest first. limit <= 0 means
	// no limit.
	ListDead(ctx context.Context, limit int) ([]WebhookEvent, error)
	// PurgeSucceeded removes succeeded events whose TerminalAt is before the
	// cutoff and reports how many were removed. Dead events are never purged.
	PurgeSucceeded(ctx context.Context, olderThan time.Time) (int, error)
}

// DependencyResolver guarantees the referenced domain entities exist before
// an event is applied. Implementations must be idempotent and retryable; a
// failure marks the whole event retryable, never partially applied.
type DependencyResolver interface {
	EnsureExists(ctx context.Context, refs []EntityRef) error
}

// EventHandler applies one decoded event to domain storage. Handlers must be
// idempotent (upsert by natural key) because retries and crash recovery
// re-execute them. Returned errors are classified with IsRetryable.
type EventHandler interface {
	Apply(ctx context.Context, event WebhookEvent) error
}

type EventHandlerFunc func(ctx context.Context, event WebhookEvent) error

func (f EventHandlerFunc) Apply(ctx context.Context, event WebhookEvent) error {
	return f(ctx, event)
}

// NopDependencyResolver accepts every reference. Useful when the domain
// storage enforces no referential integrity.
type NopDependencyResolver struct{}

func (NopDependencyResolver) EnsureExists(context.Context, []EntityRef) error {
	return nil
}

// HealthSnapshot is the monitor's view of queue state at SampledAt.
type HealthSnapshot struct {
	PendingCount     int
	InFlightCount    int
	RetryableCount   int
	DeadCount        int
	QueueLag         int
	OldestPendingAge time.Duration
	StuckSources     []string
	Healthy          bool
	SampledAt        time.Time
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}
