package envelope

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-ingest/core"
	"github.com/google/uuid"
)

// Decoder turns a raw provider notification plus routing metadata into a
// canonical pending WebhookEvent. Structural failures never produce an event.
type Decoder struct {
	Now   func() time.Time
	NewID func() string
}

func NewDecoder() *Decoder {
	return &Decoder{
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID: uuid.NewString,
	}
}

// providerEnvelope is the minimal shape every notification must satisfy.
// Identifier fields mirror the header/metadata precedence providers use for
// redelivery-stable ids.
type providerEnvelope struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	DeliveryID string          `json:"delivery_id"`
	MessageID  string          `json:"message_id"`
	Data       json.RawMessage `json:"data"`
}

func (d *Decoder) Decode(sourceKey string, typeHint string, body []byte) (core.WebhookEvent, error) {
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey == "" {
		return core.WebhookEvent{}, envelopeBadInput("envelope: source key is required", nil)
	}
	if len(body) == 0 {
		return core.WebhookEvent{}, envelopeBadInput("envelope: request body is required", map[string]any{
			"source_key": sourceKey,
		})
	}

	var env providerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return core.WebhookEvent{}, envelopeWrapBadInput(err, "envelope: malformed provider payload", map[string]any{
			"source_key": sourceKey,
		})
	}

	eventType := ResolveEventType(typeHint)
	payloadBody := body
	if len(env.Data) > 0 {
		payloadBody = env.Data
	}
	payload, err := core.DecodePayload(eventType, payloadBody)
	if err != nil {
		return core.WebhookEvent{}, envelopeWrapBadInput(err, "envelope: payload does not match event type", map[string]any{
			"source_key": sourceKey,
			"event_type": string(eventType),
		})
	}

	id := env.identifier()
	if id == "" {
		id = d.newID()
	}

	return core.WebhookEvent{
		ID:        id,
		SourceKey: sourceKey,
		Type:      eventType,
		Payload:   payload,
		Status:    core.EventStatusPending,
		Attempts:  0,
		CreatedAt: d.now(),
	}, nil
}

func (e providerEnvelope) identifier() string {
	for _, candidate := range []string{e.ID, e.EventID, e.DeliveryID, e.MessageID} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ResolveEventType maps a URL path hint onto the closed event type set.
// Hints the module does not recognize map to the unknown type so new provider
// taxonomy never blocks ingestion.
func ResolveEventType(hint string) core.EventType {
	normalized := strings.TrimSpace(strings.ToLower(hint))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, ".", "-")
	switch normalized {
	case "message-received", "message", "messages-upsert":
		return core.EventTypeMessageReceived
	case "message-updated", "messages-update":
		return core.EventTypeMessageUpdated
	case "contact-changed", "contacts-update":
		return core.EventTypeContactChanged
	case "chat-changed", "chats-update":
		return core.EventTypeChatChanged
	case "group-changed", "groups-update":
		return core.EventTypeGroupChanged
	case "reaction", "messages-reaction":
		return core.EventTypeReaction
	case "connection-state", "connection-update":
		return core.EventTypeConnectionState
	default:
		return core.EventTypeUnknown
	}
}

func (d *Decoder) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Decoder) newID() string {
	if d != nil && d.NewID != nil {
		if id := strings.TrimSpace(d.NewID()); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
