package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
)

// MutatingPipeline is the write surface the commands delegate to. The
// production implementation is *pipeline.Pipeline.
type MutatingPipeline interface {
	Ingest(ctx context.Context, sourceKey string, typeHint string, body []byte) (pipeline.IngestResult, error)
	RetryNow(ctx context.Context) (int, error)
	PurgeSucceeded(ctx context.Context, olderThan time.Duration) (int, error)
	ReplaySource(ctx context.Context, sourceKey string) error
	MarkDead(ctx context.Context, id string, reason string) (core.WebhookEvent, error)
}

type IngestCommand struct {
	pipeline MutatingPipeline
}

func NewIngestCommand(p MutatingPipeline) *IngestCommand {
	return &IngestCommand{pipeline: p}
}

func (c *IngestCommand) Execute(ctx context.Context, msg IngestMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: ingest pipeline is required")
	}
	out, err := c.pipeline.Ingest(ctx, msg.SourceKey, msg.EventType, msg.Body)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryNowCommand struct {
	pipeline MutatingPipeline
}

func NewRetryNowCommand(p MutatingPipeline) *RetryNowCommand {
	return &RetryNowCommand{pipeline: p}
}

func (c *RetryNowCommand) Execute(ctx context.Context, msg RetryNowMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: retry pipeline is required")
	}
	cleared, err := c.pipeline.RetryNow(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, cleared)
	return nil
}

type PurgeSucceededCommand struct {
	pipeline MutatingPipeline
}

func NewPurgeSucceededCommand(p MutatingPipeline) *PurgeSucceededCommand {
	return &PurgeSucceededCommand{pipeline: p}
}

func (c *PurgeSucceededCommand) Execute(ctx context.Context, msg PurgeSucceededMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: purge pipeline is required")
	}
	purged, err := c.pipeline.PurgeSucceeded(ctx, msg.OlderThan)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

type ReplaySourceCommand struct {
	pipeline MutatingPipeline
}

func NewReplaySourceCommand(p MutatingPipeline) *ReplaySourceCommand {
	return &ReplaySourceCommand{pipeline: p}
}

func (c *ReplaySourceCommand) Execute(ctx context.Context, msg ReplaySourceMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: replay pipeline is required")
	}
	return c.pipeline.ReplaySource(ctx, msg.SourceKey)
}

type MarkEventDeadCommand struct {
	pipeline MutatingPipeline
}

func NewMarkEventDeadCommand(p MutatingPipeline) *MarkEventDeadCommand {
	return &MarkEventDeadCommand{pipeline: p}
}

func (c *MarkEventDeadCommand) Execute(ctx context.Context, msg MarkEventDeadMessage) error {
	if c == nil || c.pipeline == nil {
		return commandDependencyError("command: dead-letter pipeline is required")
	}
	out, err := c.pipeline.MarkDead(ctx, msg.EventID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
