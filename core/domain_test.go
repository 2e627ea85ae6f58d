package core

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{EventStatusPending, EventStatusInFlight},
		{EventStatusInFlight, EventStatusSucceeded},
		{EventStatusInFlight, EventStatusRetryable},
		{EventStatusInFlight, EventStatusDead},
		{EventStatusInFlight, EventStatusPending},
		{EventStatusRetryable, EventStatusInFlight},
		{EventStatusRetryable, EventStatusPending},
		{EventStatusRetryable, EventStatusDead},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]string{
		{EventStatusSucceeded, EventStatusPending},
		{EventStatusSucceeded, EventStatusInFlight},
		{EventStatusDead, EventStatusPending},
		{EventStatusDead, EventStatusInFlight},
		{EventStatusPending, EventStatusSucceeded},
		{EventStatusPending, EventStatusDead},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
}

func TestApplyMutation_RejectsAttemptDecrease(t *testing.T) {
	event := WebhookEvent{
		ID:       "evt-1",
		Status:   EventStatusRetryable,
		Attempts: 3,
	}
	lower := 2
	if _, err := ApplyMutation(event, EventMutation{Attempts: &lower}); err == nil {
		t.Fatalf("expected attempt decrease to be rejected")
	}
}

func TestApplyMutation_ClearsErrorOnSuccess(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	status := EventStatusSucceeded
	event := WebhookEvent{
		ID:        "evt-2",
		Status:    EventStatusInFlight,
		Attempts:  2,
		LastError: "store unavailable",
	}
	updated, err := ApplyMutation(event, EventMutation{
		Status:     &status,
		TerminalAt: &now,
	})
	if err != nil {
		t.Fatalf("apply mutation: %v", err)
	}
	if updated.Status != EventStatusSucceeded {
		t.Fatalf("expected succeeded status, got %q", updated.Status)
	}
	if updated.LastError != "" {
		t.Fatalf("expected last error cleared on success, got %q", updated.LastError)
	}
	if updated.TerminalAt == nil || !updated.TerminalAt.Equal(now) {
		t.Fatalf("expected terminal timestamp %v, got %v", now, updated.TerminalAt)
	}
}

func TestApplyMutation_TerminalStatesAreFinal(t *testing.T) {
	pending := EventStatusPending
	for _, terminal := range []string{EventStatusSucceeded, EventStatusDead} {
		event := WebhookEvent{ID: "evt-3", Status: terminal, Attempts: 6}
		if _, err := ApplyMutation(event, EventMutation{Status: &pending}); err == nil {
			t.Fatalf("expected %s to be final", terminal)
		}
	}
}

func TestDecodePayload_RoundTripsVariants(t *testing.T) {
	payload, err := DecodePayload(EventTypeMessageReceived, []byte(`{
		"message_id": "m1",
		"chat_id":    "c1",
		"sender_id":  "s1",
		"text":       "hello"
	}`))
	if err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	message, ok := payload.(MessagePayload)
	if !ok {
		t.Fatalf("expected MessagePayload, got %T", payload)
	}
	if message.MessageID != "m1" || message.SenderID != "s1" {
		t.Fatalf("unexpected payload fields: %+v", message)
	}

	refs := message.EntityRefs()
	if len(refs) != 2 {
		t.Fatalf("expected sender and chat refs, got %v", refs)
	}
	if refs[0].Kind != EntityKindContact || refs[0].ID != "s1" {
		t.Fatalf("expected contact ref first, got %v", refs[0])
	}
}

func TestDecodePayload_UnknownKeepsRawBody(t *testing.T) {
	raw := []byte(`{"whatever": true}`)
	payload, err := DecodePayload(EventType("provider.new-thing"), raw)
	if err != nil {
		t.Fatalf("decode unknown payload: %v", err)
	}
	unknown, ok := payload.(UnknownPayload)
	if !ok {
		t.Fatalf("expected UnknownPayload, got %T", payload)
	}
	if string(unknown.Raw) != string(raw) {
		t.Fatalf("expected raw body preserved")
	}
	if unknown.Kind() != EventTypeUnknown {
		t.Fatalf("expected unknown kind, got %q", unknown.Kind())
	}
}

func TestDecodePayload_MalformedBody(t *testing.T) {
	if _, err := DecodePayload(EventTypeContactChanged, []byte(`{"contact_id":`)); err == nil {
		t.Fatalf("expected malformed payload to fail decoding")
	}
}
