package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-ingest/adapters/gocommand"
	"github.com/goliatone/go-ingest/adapters/gojob"
	"github.com/goliatone/go-ingest/adapters/gologger"
	ingestcommand "github.com/goliatone/go-ingest/command"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

func newCompatPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Backoff.Initial = time.Millisecond
	cfg.Health.Interval = 0

	p, err := pipeline.New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	err = p.RegisterHandler(core.EventTypeMessageReceived, core.EventHandlerFunc(
		func(context.Context, core.WebhookEvent) error { return nil },
	))
	if err != nil {
		t.Fatalf("register handler: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pipeline: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func waitForStatus(t *testing.T, p *pipeline.Pipeline, id string, status string) core.WebhookEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		event, err := p.GetEvent(context.Background(), id)
		if err == nil && event.Status == status {
			return event
		}
		time.Sleep(2 * time.Millisecond)
	}
	event, err := p.GetEvent(context.Background(), id)
	t.Fatalf("event %q never reached %q (last: %#v, err: %v)", id, status, event, err)
	return core.WebhookEvent{}
}

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("ingest", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	enqueueProbe := &compatEnqueuer{}
	enqueuer := gojob.NewEnqueuer(enqueueProbe)
	if err := enqueuer.EnqueueIngest(ctx, gojob.IngestRequest{
		SourceKey:      "acct-1",
		EventType:      "message-received",
		Body:           []byte(`{"id":"evt-q1","data":{"message_id":"m1","chat_id":"c1","sender_id":"s1"}}`),
		IdempotencyKey: "evt-q1",
	}); err != nil {
		t.Fatalf("enqueue via gojob adapter: %v", err)
	}
	if enqueueProbe.last == nil || enqueueProbe.last.JobID != gojob.JobIDIngest {
		t.Fatalf("expected go-job message mapping through enqueuer adapter")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("ingest.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_QueueDeliveryDrainsIntoPipeline(t *testing.T) {
	p := newCompatPipeline(t)
	handler := gojob.NewHandler(p, gojob.PolicyFromConfig(core.DefaultConfig()))

	delivery := &compatDelivery{msg: gojob.ToExecutionMessage(gojob.IngestRequest{
		SourceKey:      "acct-1",
		EventType:      "message-received",
		Body:           []byte(`{"id":"evt-q2","data":{"message_id":"m2","chat_id":"c1","sender_id":"s1"}}`),
		IdempotencyKey: "evt-q2",
	})}

	if err := handler.Handle(context.Background(), delivery, 1); err != nil {
		t.Fatalf("handle delivery: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery ack after durable append")
	}

	event := waitForStatus(t, p, "evt-q2", core.EventStatusSucceeded)
	if event.SourceKey != "acct-1" {
		t.Fatalf("unexpected event: %#v", event)
	}
}

func TestRuntimeCompatibility_CommandDispatchThroughWrappers(t *testing.T) {
	p := newCompatPipeline(t)
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())

	ingestSub, err := gocommand.RegisterAndSubscribe(adapter, ingestcommand.NewIngestCommand(p))
	if err != nil {
		t.Fatalf("register ingest wrapper: %v", err)
	}
	defer ingestSub.Unsubscribe()

	retrySub, err := gocommand.RegisterAndSubscribe(adapter, ingestcommand.NewRetryNowCommand(p))
	if err != nil {
		t.Fatalf("register retry wrapper: %v", err)
	}
	defer retrySub.Unsubscribe()

	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize adapter: %v", err)
	}

	err = gocommand.Dispatch(context.Background(), ingestcommand.IngestMessage{
		SourceKey: "acct-1",
		EventType: "message-received",
		Body:      []byte(`{"id":"evt-d1","data":{"message_id":"m3","chat_id":"c1","sender_id":"s1"}}`),
	})
	if err != nil {
		t.Fatalf("dispatch ingest command: %v", err)
	}

	waitForStatus(t, p, "evt-d1", core.EventStatusSucceeded)

	if err := gocommand.Dispatch(context.Background(), ingestcommand.RetryNowMessage{}); err != nil {
		t.Fatalf("dispatch retry command: %v", err)
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "ingest.compat.command" }

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (d *compatDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *compatDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *compatDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.nackOpts = opts
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
