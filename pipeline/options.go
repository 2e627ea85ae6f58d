package pipeline

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/envelope"
)

type Option func(*builder)

type builder struct {
	log         core.EventLog
	resolver    core.DependencyResolver
	decoder     *envelope.Decoder
	retryPolicy RetryPolicy
	logger      core.Logger
	provider    core.LoggerProvider
	metrics     core.MetricsRecorder
	now         func() time.Time
	handlers    map[core.EventType]core.EventHandler
}

func WithEventLog(log core.EventLog) Option {
	return func(b *builder) {
		b.log = log
	}
}

func WithDependencyResolver(resolver core.DependencyResolver) Option {
	return func(b *builder) {
		b.resolver = resolver
	}
}

func WithDecoder(decoder *envelope.Decoder) Option {
	return func(b *builder) {
		b.decoder = decoder
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *builder) {
		b.retryPolicy = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *builder) {
		b.provider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *builder) {
		b.metrics = recorder
	}
}

// WithClock overrides the pipeline's time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *builder) {
		b.now = now
	}
}

// WithHandler registers the domain handler for one event type at build time.
// Handlers can also be registered later through RegisterHandler.
func WithHandler(eventType core.EventType, handler core.EventHandler) Option {
	return func(b *builder) {
		if b.handlers == nil {
			b.handlers = map[core.EventType]core.EventHandler{}
		}
		b.handlers[eventType] = handler
	}
}

func defaultBuilder(cfg core.Config) builder {
	provider, logger := glog.Resolve("ingest", nil, nil)
	return builder{
		log:      NewInMemoryEventLog(),
		resolver: core.NopDependencyResolver{},
		decoder:  envelope.NewDecoder(),
		retryPolicy: ExponentialRetryPolicy{
			Initial: cfg.Backoff.Initial,
			Max:     cfg.Backoff.Max,
		},
		logger:   logger,
		provider: provider,
		metrics:  core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		handlers: map[core.EventType]core.EventHandler{},
	}
}

// normalizeConfig fills zero values with the module defaults so a partially
// populated Config behaves like DefaultConfig for the unset knobs.
func normalizeConfig(cfg core.Config) core.Config {
	defaults := core.DefaultConfig()
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaults.ServiceName
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.WorkerBuffer == 0 {
		cfg.WorkerBuffer = defaults.WorkerBuffer
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.Backoff == (core.BackoffConfig{}) {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.Health == (core.HealthConfig{}) {
		cfg.Health = defaults.Health
	}
	if cfg.Retention == (core.RetentionConfig{}) {
		cfg.Retention = defaults.Retention
	}
	return cfg
}
