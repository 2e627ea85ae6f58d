package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	EventStatusPending   = "pending"
	EventStatusInFlight  = "in_flight"
	EventStatusSucceeded = "succeeded"
	EventStatusRetryable = "failed_retryable"
	EventStatusDead      = "dead"
)

type EventType string

const (
	EventTypeMessageReceived EventType = "message.received"
	EventTypeMessageUpdated  EventType = "message.updated"
	EventTypeContactChanged  EventType = "contact.changed"
	EventTypeChatChanged     EventType = "chat.changed"
	EventTypeGroupChanged    EventType = "group.changed"
	EventTypeReaction        EventType = "reaction"
	EventTypeConnectionState EventType = "connection.state"
	EventTypeUnknown         EventType = "unknown"
)

const (
	EntityKindContact = "contact"
	EntityKindChat    = "chat"
	EntityKindGroup   = "group"
)

// EntityRef identifies a domain entity an event depends on. The dispatcher
// hands the full set to the DependencyResolver before the handler runs.
type EntityRef struct {
	Kind string
	ID   string
}

// Payload is the closed set of decoded event bodies. Decoding happens once
// at the envelope boundary; handlers switch on the concrete type and never
// re-parse JSON.
type Payload interface {
	Kind() EventType
	EntityRefs() []EntityRef
}

type MessagePayload struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

func (MessagePayload) Kind() EventType { return EventTypeMessageReceived }

func (p MessagePayload) EntityRefs() []EntityRef {
	return messageRefs(p.SenderID, p.ChatID)
}

type MessageUpdatePayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Revoked   bool   `json:"revoked,omitempty"`
}

func (MessageUpdatePayload) Kind() EventType { return EventTypeMessageUpdated }

func (p MessageUpdatePayload) EntityRefs() []EntityRef {
	return messageRefs(p.SenderID, p.ChatID)
}

type ContactPayload struct {
	ContactID   string `json:"contact_id"`
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (ContactPayload) Kind() EventType { return EventTypeContactChanged }

func (p ContactPayload) EntityRefs() []EntityRef {
	return nil
}

type ChatPayload struct {
	ChatID   string `json:"chat_id"`
	Name     string `json:"name,omitempty"`
	Archived bool   `json:"archived,omitempty"`
	Pinned   bool   `json:"pinned,omitempty"`
}

func (ChatPayload) Kind() EventType { return EventTypeChatChanged }

func (p ChatPayload) EntityRefs() []EntityRef {
	return nil
}

type GroupPayload struct {
	GroupID        string   `json:"group_id"`
	Subject        string   `json:"subject,omitempty"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
}

func (GroupPayload) Kind() EventType { return EventTypeGroupChanged }

func (p GroupPayload) EntityRefs() []EntityRef {
	refs := make([]EntityRef, 0, len(p.ParticipantIDs))
	for _, id := range p.ParticipantIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			refs = append(refs, EntityRef{Kind: EntityKindContact, ID: trimmed})
		}
	}
	return refs
}

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Emoji     string `json:"emoji,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

func (ReactionPayload) Kind() EventType { return EventTypeReaction }

func (p ReactionPayload) EntityRefs() []EntityRef {
	return messageRefs(p.SenderID, p.ChatID)
}

type ConnectionStatePayload struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (ConnectionStatePayload) Kind() EventType { return EventTypeConnectionState }

func (p ConnectionStatePayload) EntityRefs() []EntityRef {
	return nil
}

// UnknownPayload carries the raw body of an event type this module does not
// recognize. Providers evolve their taxonomy; unknown events are acked as
// no-ops rather than blocking the source queue.
type UnknownPayload struct {
	Raw json.RawMessage `json:"raw"`
}

func (UnknownPayload) Kind() EventType { return EventTypeUnknown }

func (p UnknownPayload) EntityRefs() []EntityRef {
	return nil
}

func messageRefs(senderID string, chatID string) []EntityRef {
	refs := make([]EntityRef, 0, 2)
	if trimmed := strings.TrimSpace(senderID); trimmed != "" {
		refs = append(refs, EntityRef{Kind: EntityKindContact, ID: trimmed})
	}
	if trimmed := strings.TrimSpace(chatID); trimmed != "" {
		refs = append(refs, EntityRef{Kind: EntityKindChat, ID: trimmed})
	}
	return refs
}

// WebhookEvent is the canonical durable record of one provider notification.
type WebhookEvent struct {
	ID             string
	SourceKey      string
	Type           EventType
	Payload        Payload
	Status         string
	Attempts       int
	NextEligibleAt *time.Time
	LastError      string
	CreatedAt      time.Time
	LastAttemptAt  *time.Time
	TerminalAt     *time.Time
}

func (e WebhookEvent) Terminal() bool {
	return IsTerminalStatus(e.Status)
}

// EntityRefs returns the domain entities this event references; empty for
// payload kinds that create their own entity.
func (e WebhookEvent) EntityRefs() []EntityRef {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.EntityRefs()
}

func (e WebhookEvent) Clone() WebhookEvent {
	cloned := e
	cloned.NextEligibleAt = cloneTimePointer(e.NextEligibleAt)
	cloned.LastAttemptAt = cloneTimePointer(e.LastAttemptAt)
	cloned.TerminalAt = cloneTimePointer(e.TerminalAt)
	return cloned
}

func IsTerminalStatus(status string) bool {
	switch status {
	case EventStatusSucceeded, EventStatusDead:
		return true
	default:
		return false
	}
}

func IsValidStatus(status string) bool {
	switch status {
	case EventStatusPending, EventStatusInFlight, EventStatusSucceeded,
		EventStatusRetryable, EventStatusDead:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the status machine admits from -> to.
// Terminal states are never left; attempts monotonicity is enforced
// separately by ApplyMutation.
func CanTransition(from string, to string) bool {
	if !IsValidStatus(from) || !IsValidStatus(to) {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case EventStatusPending:
		return to == EventStatusInFlight
	case EventStatusInFlight:
		// in_flight -> pending is the crash-recovery demotion path.
		return to == EventStatusSucceeded || to == EventStatusRetryable ||
			to == EventStatusDead || to == EventStatusPending
	case EventStatusRetryable:
		return to == EventStatusInFlight || to == EventStatusDead || to == EventStatusPending
	default:
		return false
	}
}

// EventMutation is the partial update applied by the dispatcher and the retry
// scheduler. Nil fields are left untouched.
type EventMutation struct {
	Status            *string
	Attempts          *int
	NextEligibleAt    *time.Time
	ClearNextEligible bool
	LastError         *string
	LastAttemptAt     *time.Time
	TerminalAt        *time.Time
}

// ApplyMutation validates and applies a mutation against the current record.
// Every EventLog implementation funnels updates through here so the lifecycle
// invariants hold regardless of the storage backend.
func ApplyMutation(event WebhookEvent, mutation EventMutation) (WebhookEvent, error) {
	next := event.Clone()
	if mutation.Status != nil {
		if !CanTransition(event.Status, *mutation.Status) {
			return WebhookEvent{}, fmt.Errorf(
				"core: invalid status transition %q -> %q for event %q",
				event.Status, *mutation.Status, event.ID,
			)
		}
		next.Status = *mutation.Status
	}
	if mutation.Attempts != nil {
		if *mutation.Attempts < event.Attempts {
			return WebhookEvent{}, fmt.Errorf(
				"core: attempts may not decrease (%d -> %d) for event %q",
				event.Attempts, *mutation.Attempts, event.ID,
			)
		}
		next.Attempts = *mutation.Attempts
	}
	if mutation.ClearNextEligible {
		next.NextEligibleAt = nil
	} else if mutation.NextEligibleAt != nil {
		at := mutation.NextEligibleAt.UTC()
		next.NextEligibleAt = &at
	}
	if mutation.LastError != nil {
		next.LastError = strings.TrimSpace(*mutation.LastError)
	}
	if mutation.LastAttemptAt != nil {
		at := mutation.LastAttemptAt.UTC()
		next.LastAttemptAt = &at
	}
	if mutation.TerminalAt != nil {
		at := mutation.TerminalAt.UTC()
		next.TerminalAt = &at
	}
	if next.Terminal() && next.Status == EventStatusSucceeded {
		next.LastError = ""
	}
	return next, nil
}

// DecodePayload decodes a raw body into the payload variant for eventType.
// Unrecognized types decode to UnknownPayload.
func DecodePayload(eventType EventType, raw []byte) (Payload, error) {
	switch eventType {
	case EventTypeMessageReceived:
		return decodeInto[MessagePayload](raw)
	case EventTypeMessageUpdated:
		return decodeInto[MessageUpdatePayload](raw)
	case EventTypeContactChanged:
		return decodeInto[ContactPayload](raw)
	case EventTypeChatChanged:
		return decodeInto[ChatPayload](raw)
	case EventTypeGroupChanged:
		return decodeInto[GroupPayload](raw)
	case EventTypeReaction:
		return decodeInto[ReactionPayload](raw)
	case EventTypeConnectionState:
		return decodeInto[ConnectionStatePayload](raw)
	default:
		return UnknownPayload{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// EncodePayload serializes a payload for durable storage. The event type is
// stored alongside the bytes so DecodePayload can rehydrate the variant.
func EncodePayload(payload Payload) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	if unknown, ok := payload.(UnknownPayload); ok {
		if len(unknown.Raw) == 0 {
			return []byte("{}"), nil
		}
		return append([]byte(nil), unknown.Raw...), nil
	}
	return json.Marshal(payload)
}

func decodeInto[T Payload](raw []byte) (Payload, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("core: decode %s payload: %w", payload.Kind(), err)
		}
	}
	return payload, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
