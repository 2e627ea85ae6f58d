package ingest_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	ingest "github.com/goliatone/go-ingest"
	ingestcommand "github.com/goliatone/go-ingest/command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
	ingestquery "github.com/goliatone/go-ingest/query"
)

// Exercises the full composition surface a downstream service would use:
// extension hooks contribute handlers and command/query bundles, the facade
// drives mutations and reads, and the pipeline does the durable work.
func TestComposition_FacadeHooksAndPipelineEndToEnd(t *testing.T) {
	cfg := ingest.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Backoff.Initial = 1 * time.Millisecond
	cfg.Health.Interval = 0

	p, err := ingest.New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	var handled atomic.Int64
	hooks := ingest.NewExtensionHooks()
	if err := hooks.RegisterHandlerPack(ingest.HandlerPack{
		Name: "messaging",
		Handlers: map[core.EventType]core.EventHandler{
			core.EventTypeMessageReceived: core.EventHandlerFunc(func(ctx context.Context, event core.WebhookEvent) error {
				handled.Add(1)
				return nil
			}),
		},
	}); err != nil {
		t.Fatalf("register handler pack: %v", err)
	}
	if err := hooks.ApplyHandlerPacks(p); err != nil {
		t.Fatalf("apply handler packs: %v", err)
	}

	facade, err := ingest.NewFacade(p)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	type messagingBundle struct {
		ingest *ingestcommand.IngestCommand
		getOne *ingestquery.GetEventQuery
		health *ingestquery.GetHealthQuery
	}
	if err := hooks.RegisterCommandQueryBundle("messaging", func(cq ingest.CommandQueryPipeline) (any, error) {
		return messagingBundle{
			ingest: ingestcommand.NewIngestCommand(cq),
			getOne: ingestquery.NewGetEventQuery(cq),
			health: ingestquery.NewGetHealthQuery(cq),
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	built, err := hooks.BuildCommandQueryBundles(p)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	bundle, ok := built["messaging"].(messagingBundle)
	if !ok {
		t.Fatalf("expected messaging bundle, got %T", built["messaging"])
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pipeline: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.Stop(ctx); err != nil {
			t.Errorf("stop pipeline: %v", err)
		}
	})

	collector := gocmd.NewResult[pipeline.IngestResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err = facade.Commands().Ingest.Execute(ctx, ingestcommand.IngestMessage{
		SourceKey: "acct-1",
		EventType: "message-received",
		Body:      []byte(`{"id":"evt-c1","data":{"message_id":"m1","chat_id":"c1","sender_id":"s1"}}`),
	})
	if err != nil {
		t.Fatalf("ingest via facade: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.EventID != "evt-c1" {
		t.Fatalf("expected ingest result for evt-c1, got %#v (ok=%v)", result, ok)
	}

	waitForEventStatus(t, facade, "evt-c1", core.EventStatusSucceeded)
	if handled.Load() != 1 {
		t.Fatalf("expected pack handler to run once, got %d", handled.Load())
	}

	// The bundle shares the same pipeline: its query sees the facade's event.
	event, err := bundle.getOne.Query(context.Background(), ingestquery.GetEventMessage{EventID: "evt-c1"})
	if err != nil {
		t.Fatalf("bundle query: %v", err)
	}
	if event.Status != core.EventStatusSucceeded {
		t.Fatalf("expected succeeded via bundle query, got %q", event.Status)
	}

	// Re-ingesting the same provider id acks as a duplicate, and the handler
	// does not run again.
	dupCollector := gocmd.NewResult[pipeline.IngestResult]()
	dupCtx := gocmd.ContextWithResult(context.Background(), dupCollector)
	err = bundle.ingest.Execute(dupCtx, ingestcommand.IngestMessage{
		SourceKey: "acct-1",
		EventType: "message-received",
		Body:      []byte(`{"id":"evt-c1","data":{"message_id":"m1","chat_id":"c1","sender_id":"s1"}}`),
	})
	if err != nil {
		t.Fatalf("duplicate ingest: %v", err)
	}
	dup, ok := dupCollector.Load()
	if !ok || !dup.Duplicate {
		t.Fatalf("expected duplicate ack, got %#v (ok=%v)", dup, ok)
	}
	if handled.Load() != 1 {
		t.Fatalf("duplicate must not re-run handler, got %d runs", handled.Load())
	}

	snapshot, err := bundle.health.Query(context.Background(), ingestquery.GetHealthMessage{})
	if err != nil {
		t.Fatalf("health query: %v", err)
	}
	if !snapshot.Healthy {
		t.Fatalf("expected healthy snapshot after drain, got %#v", snapshot)
	}
}

func waitForEventStatus(t *testing.T, facade *ingest.Facade, id string, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		event, err := facade.Queries().GetEvent.Query(context.Background(), ingestquery.GetEventMessage{EventID: id})
		if err == nil && event.Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("event %s never reached status %q", id, want)
}
