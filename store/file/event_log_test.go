package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-ingest/core"
)

func seedEvent(id string, sourceKey string, createdAt time.Time) core.WebhookEvent {
	return core.WebhookEvent{
		ID:        id,
		SourceKey: sourceKey,
		Type:      core.EventTypeMessageReceived,
		Payload: core.MessagePayload{
			MessageID: "msg-" + id,
			ChatID:    "chat-1",
			SenderID:  "contact-1",
			Text:      "payload for " + id,
		},
		Status:    core.EventStatusPending,
		CreatedAt: createdAt,
	}
}

func TestEventLog_AppendPersistsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	_, duplicate, err := log.Append(context.Background(), seedEvent("evt-1", "wa-main", base))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if duplicate {
		t.Fatalf("first append reported duplicate")
	}
	if _, err := os.Stat(filepath.Join(dir, "evt-1.json")); err != nil {
		t.Fatalf("record file missing: %v", err)
	}

	_, duplicate, err = log.Append(context.Background(), seedEvent("evt-1", "wa-main", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("redelivery append: %v", err)
	}
	if !duplicate {
		t.Fatalf("redelivery was not deduplicated")
	}
}

func TestEventLog_ReopenRestoresStateAndOrder(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		event := seedEvent(fmt.Sprintf("evt-%d", i), "wa-main", base.Add(time.Duration(i)*time.Second))
		if _, _, err := log.Append(context.Background(), event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	inFlight := core.EventStatusInFlight
	one := 1
	if _, err := log.Update(context.Background(), "evt-0", core.EventMutation{
		Status:   &inFlight,
		Attempts: &one,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// a new handle over the same directory simulates a process restart
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	events, err := reopened.ScanBySource(context.Background(), "wa-main", time.Time{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events after reopen, got %d", len(events))
	}
	for i, event := range events {
		if expected := fmt.Sprintf("evt-%d", i); event.ID != expected {
			t.Fatalf("append order lost across reopen: position %d is %s", i, event.ID)
		}
	}
	if events[0].Status != core.EventStatusInFlight || events[0].Attempts != 1 {
		t.Fatalf("mutation lost across reopen: %+v", events[0])
	}

	restored, err := reopened.Get(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload, ok := restored.Payload.(core.MessagePayload)
	if !ok {
		t.Fatalf("payload variant lost across reopen: %T", restored.Payload)
	}
	if payload.MessageID != "msg-evt-1" {
		t.Fatalf("payload content lost across reopen: %+v", payload)
	}
}

func TestEventLog_ReopenAssignsFreshSequence(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if _, _, err := log.Append(context.Background(), seedEvent("evt-before", "wa-main", base)); err != nil {
		t.Fatalf("append: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, _, err := reopened.Append(context.Background(), seedEvent("evt-after", "wa-main", base.Add(time.Second))); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	events, err := reopened.ScanBySource(context.Background(), "wa-main", time.Time{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(events) != 2 || events[0].ID != "evt-before" || events[1].ID != "evt-after" {
		t.Fatalf("sequence not monotone across reopen: %+v", events)
	}
}

func TestEventLog_QuarantinesCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if _, _, err := log.Append(context.Background(), seedEvent("evt-good", "wa-main", base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "evt-bad.json"), []byte("{torn write"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen with corrupt record: %v", err)
	}
	if _, err := reopened.Get(context.Background(), "evt-good"); err != nil {
		t.Fatalf("healthy record lost: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, corruptDir, "evt-bad.json")); err != nil {
		t.Fatalf("corrupt record not quarantined: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "evt-bad.json")); !os.IsNotExist(err) {
		t.Fatalf("corrupt record left in place")
	}
}

func TestEventLog_PurgeRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if _, _, err := log.Append(context.Background(), seedEvent("evt-done", "wa-main", base)); err != nil {
		t.Fatalf("append: %v", err)
	}
	inFlight := core.EventStatusInFlight
	succeeded := core.EventStatusSucceeded
	one := 1
	terminalAt := base.Add(time.Minute)
	if _, err := log.Update(context.Background(), "evt-done", core.EventMutation{Status: &inFlight, Attempts: &one}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := log.Update(context.Background(), "evt-done", core.EventMutation{Status: &succeeded, TerminalAt: &terminalAt}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	purged, err := log.PurgeSucceeded(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged event, got %d", purged)
	}
	if _, err := os.Stat(filepath.Join(dir, "evt-done.json")); !os.IsNotExist(err) {
		t.Fatalf("purged record file still on disk")
	}
}
