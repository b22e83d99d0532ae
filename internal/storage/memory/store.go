// Package memory is an in-process event store with the same uniqueness
// semantics as the postgres store. It backs tests and STORE_URL=memory://.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	events   []domain.StoredEvent
	keys     map[string]struct{}
	messages map[string]domain.MessageRecord

	// InsertErr, when set, makes Insert fail with it. Failure telemetry
	// is still recorded.
	InsertErr error
	// QueryErr, when set, makes reads fail with it.
	QueryErr error

	log *zap.Logger
	now func() time.Time
}

var _ storage.EventStore = (*Store)(nil)

func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		keys:     make(map[string]struct{}),
		messages: make(map[string]domain.MessageRecord),
		log:      log.With(zap.String("component", "memory-store")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Insert(_ context.Context, ev domain.CanonicalEmailEvent, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		s.log.Error("insert failed", zap.String("idempotency_key", key), zap.Error(s.InsertErr))
		return false, s.InsertErr
	}
	return s.insertLocked(ev, key), nil
}

func (s *Store) insertLocked(ev domain.CanonicalEmailEvent, key string) bool {
	if _, dup := s.keys[key]; dup {
		return false
	}
	s.keys[key] = struct{}{}
	s.events = append(s.events, domain.StoredEvent{
		ID:                  uuid.NewString(),
		CanonicalEmailEvent: ev,
		IdempotencyKey:      key,
		CreatedAt:           s.now(),
	})
	return true
}

func (s *Store) UpsertMessage(_ context.Context, messageID string, ev domain.CanonicalEmailEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[messageID] = domain.MessageRecord{
		MessageID:     messageID,
		Email:         ev.Email,
		CampaignID:    ev.CampaignID,
		TemplateID:    ev.TemplateID,
		LastEventType: ev.EventType,
		LastEventAt:   ev.OccurredAt,
		UpdatedAt:     s.now(),
	}
}

func (s *Store) QueryByTimeRange(_ context.Context, start, end time.Time, eventType *domain.EventType, campaignID *string) ([]domain.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	var out []domain.StoredEvent
	for _, ev := range s.events {
		if !inRange(ev.OccurredAt, start, end) {
			continue
		}
		if eventType != nil && ev.EventType != *eventType {
			continue
		}
		if campaignID != nil && (ev.CampaignID == nil || *ev.CampaignID != *campaignID) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > storage.MaxQueryRows {
		out = out[:storage.MaxQueryRows]
	}
	return out, nil
}

func (s *Store) CountByType(_ context.Context, start, end time.Time) (map[domain.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	counts := make(map[domain.EventType]int64)
	for _, ev := range s.events {
		if inRange(ev.OccurredAt, start, end) {
			counts[ev.EventType]++
		}
	}
	return counts, nil
}

func (s *Store) RecordOperationalFailure(_ context.Context, kind domain.FailureKind, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := storage.FailureEvent(kind, details, uuid.NewString(), s.now())
	s.insertLocked(ev, uuid.NewString())
	s.log.Debug("operational failure recorded", zap.String("kind", string(kind)))
}

func (s *Store) Ready(context.Context) error { return nil }

// Events returns a copy of every stored row in insertion order.
func (s *Store) Events() []domain.StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StoredEvent(nil), s.events...)
}

// Message returns the denormalized record for messageID.
func (s *Store) Message(messageID string) (domain.MessageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	return m, ok
}

// SetNow overrides the clock used for created_at and failure rows.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
