package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Provider identifies the system an event came from.
type Provider string

const (
	ProviderPlunk Provider = "plunk"
	// ProviderSystem marks telemetry rows written by this service itself.
	ProviderSystem Provider = "system"
)

// EventType is the lifecycle stage of one email.
type EventType string

const (
	EventSent        EventType = "sent"
	EventDelivered   EventType = "delivered"
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventBounce      EventType = "bounce"
	EventUnsubscribe EventType = "unsubscribe"
	EventResubscribe EventType = "resubscribe"
	EventFailed      EventType = "failed"

	// Reserved for operational telemetry; never produced from a provider payload.
	EventIngestionFailure EventType = "ingestion_failure"
	EventAuthFailure      EventType = "auth_failure"
)

var providerEventTypes = []EventType{
	EventSent,
	EventDelivered,
	EventOpen,
	EventClick,
	EventBounce,
	EventUnsubscribe,
	EventResubscribe,
	EventFailed,
}

// ParseEventType maps a provider event name onto the known set.
// Unknown names become EventFailed so they stay visible to alerting.
func ParseEventType(name string) EventType {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range providerEventTypes {
		if string(t) == name {
			return t
		}
	}
	return EventFailed
}

// LookupEventType resolves any stored event type, telemetry types
// included. Unlike ParseEventType it reports unknown names.
func LookupEventType(name string) (EventType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range providerEventTypes {
		if string(t) == name {
			return t, true
		}
	}
	switch EventType(name) {
	case EventIngestionFailure, EventAuthFailure:
		return EventType(name), true
	}
	return "", false
}

// Sentinels used when a payload does not carry the value.
const (
	UnknownEmail = "unknown@unknown"
	SystemEmail  = "system@internal"
)

// CanonicalEmailEvent is the provider-agnostic shape of one webhook delivery.
type CanonicalEmailEvent struct {
	Provider   Provider        `json:"provider"`
	EventType  EventType       `json:"event_type"`
	Email      string          `json:"email"`
	MessageID  string          `json:"message_id"`
	CampaignID *string         `json:"campaign_id,omitempty"`
	TemplateID *string         `json:"template_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// StoredEvent is a persisted event row. Rows are append-only.
type StoredEvent struct {
	ID string `json:"id"`
	CanonicalEmailEvent
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageRecord is the denormalized last-known state of one message.
type MessageRecord struct {
	MessageID     string    `json:"message_id"`
	Email         string    `json:"email"`
	CampaignID    *string   `json:"campaign_id,omitempty"`
	TemplateID    *string   `json:"template_id,omitempty"`
	LastEventType EventType `json:"last_event_type"`
	LastEventAt   time.Time `json:"last_event_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FailureKind classifies operational telemetry rows.
type FailureKind string

const (
	FailureIngestion FailureKind = "ingestion"
	FailureAuth      FailureKind = "auth"
)

// EventType returns the reserved event type a failure is stored under.
func (k FailureKind) EventType() EventType {
	if k == FailureAuth {
		return EventAuthFailure
	}
	return EventIngestionFailure
}
