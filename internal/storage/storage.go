// Package storage defines the event store contract shared by the postgres
// and in-memory implementations.
package storage

import (
	"context"
	"time"

	"example.com/emailevents/internal/domain"
)

// MaxQueryRows caps QueryByTimeRange results.
const MaxQueryRows = 1000

// EventStore persists canonical events. Implementations never panic; failures
// are logged at the boundary and surfaced as return values.
type EventStore interface {
	// Insert stores ev under key. A key that already exists yields
	// (false, nil); any other failure yields (false, err).
	Insert(ctx context.Context, ev domain.CanonicalEmailEvent, key string) (bool, error)

	// UpsertMessage overwrites the denormalized row for messageID.
	// It is best-effort: failures are logged and swallowed.
	UpsertMessage(ctx context.Context, messageID string, ev domain.CanonicalEmailEvent)

	// QueryByTimeRange returns events with occurred_at in [start, end],
	// newest first. Nil filters match everything.
	QueryByTimeRange(ctx context.Context, start, end time.Time, eventType *domain.EventType, campaignID *string) ([]domain.StoredEvent, error)

	// CountByType aggregates events per type with occurred_at in [start, end].
	CountByType(ctx context.Context, start, end time.Time) (map[domain.EventType]int64, error)

	// RecordOperationalFailure appends a telemetry row under the system
	// identity with a random key, so every occurrence is kept.
	RecordOperationalFailure(ctx context.Context, kind domain.FailureKind, details map[string]any)

	Ready(ctx context.Context) error
}

// FailureEvent builds the telemetry event for an operational failure.
// The message id and idempotency key are both random.
func FailureEvent(kind domain.FailureKind, details map[string]any, id string, now time.Time) domain.CanonicalEmailEvent {
	return domain.CanonicalEmailEvent{
		Provider:   domain.ProviderSystem,
		EventType:  kind.EventType(),
		Email:      domain.SystemEmail,
		MessageID:  "system-" + id,
		OccurredAt: now.UTC(),
		RawPayload: encodeDetails(kind, details),
	}
}
