package ingest

import (
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
)

type Config = core.Config

type BackoffConfig = core.BackoffConfig
type HealthConfig = core.HealthConfig
type RetentionConfig = core.RetentionConfig

type WebhookEvent = core.WebhookEvent
type EventType = core.EventType
type EventMutation = core.EventMutation
type EntityRef = core.EntityRef
type HealthSnapshot = core.HealthSnapshot

type EventLog = core.EventLog
type EventHandler = core.EventHandler
type EventHandlerFunc = core.EventHandlerFunc
type DependencyResolver = core.DependencyResolver
type MetricsRecorder = core.MetricsRecorder

type Pipeline = pipeline.Pipeline
type IngestResult = pipeline.IngestResult
type Option = pipeline.Option

var (
	WithEventLog           = pipeline.WithEventLog
	WithDependencyResolver = pipeline.WithDependencyResolver
	WithDecoder            = pipeline.WithDecoder
	WithRetryPolicy        = pipeline.WithRetryPolicy
	WithLogger             = pipeline.WithLogger
	WithLoggerProvider     = pipeline.WithLoggerProvider
	WithMetricsRecorder    = pipeline.WithMetricsRecorder
	WithClock              = pipeline.WithClock
	WithHandler            = pipeline.WithHandler
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func New(cfg Config, opts ...Option) (*Pipeline, error) {
	return pipeline.New(cfg, opts...)
}
