package gocommand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	ingestcommand "github.com/goliatone/go-ingest/command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type okMessage struct{}

func (okMessage) Type() string { return "ingest.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "ingest.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "ingest.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "ingest.command.queue" }

type recordingPipeline struct {
	ingested int
}

func (p *recordingPipeline) Ingest(_ context.Context, sourceKey string, _ string, _ []byte) (pipeline.IngestResult, error) {
	p.ingested++
	return pipeline.IngestResult{EventID: "evt-1", SourceKey: sourceKey}, nil
}

func (p *recordingPipeline) RetryNow(context.Context) (int, error) { return 0, nil }

func (p *recordingPipeline) PurgeSucceeded(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (p *recordingPipeline) ReplaySource(context.Context, string) error { return nil }

func (p *recordingPipeline) MarkDead(context.Context, string, string) (core.WebhookEvent, error) {
	return core.WebhookEvent{}, nil
}

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestRegisterIngestCommandsAndQueries(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	p := &recordingPipeline{}

	if err := RegisterIngestCommands(adapter, p); err != nil {
		t.Fatalf("register ingest commands: %v", err)
	}

	cfg := core.DefaultConfig()
	cfg.Health.Interval = 0
	pipe, err := pipeline.New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if err := RegisterIngestQueries(adapter, pipe, pipe); err != nil {
		t.Fatalf("register ingest queries: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	cmd := ingestcommand.NewIngestCommand(p)
	if err := cmd.Execute(context.Background(), ingestcommand.IngestMessage{
		SourceKey: "acct-1",
		Body:      []byte(`{"id":"evt-1"}`),
	}); err != nil {
		t.Fatalf("execute ingest command: %v", err)
	}
	if p.ingested != 1 {
		t.Fatalf("expected one ingest, got %d", p.ingested)
	}

	if err := RegisterIngestCommands(adapter, nil); err == nil {
		t.Fatalf("expected nil pipeline to be rejected")
	}
	if err := RegisterIngestQueries(adapter, nil, nil); err == nil {
		t.Fatalf("expected nil readers to be rejected")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("ingest.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}
