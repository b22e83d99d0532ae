package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/storage"
)

const uniqueViolation = "23505"

type Store struct {
	db  *DB
	log *zap.Logger
	now func() time.Time
}

var _ storage.EventStore = (*Store)(nil)

func NewStore(db *DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:  db,
		log: log.With(zap.String("component", "postgres-store")),
		now: func() time.Time { return time.Now().UTC() },
	}
}

const insertEventSQL = `
INSERT INTO email_events (
  id, provider, event_type, email, message_id, campaign_id, template_id,
  occurred_at, raw_payload, idempotency_key, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11)
ON CONFLICT (idempotency_key) DO NOTHING`

// Insert relies on the unique index over idempotency_key; a conflicting
// row affects zero rows and reports a duplicate.
func (s *Store) Insert(ctx context.Context, ev domain.CanonicalEmailEvent, key string) (bool, error) {
	inserted, err := s.insert(ctx, ev, key)
	if err != nil {
		s.log.Error("insert event failed",
			zap.String("idempotency_key", key),
			zap.String("event_type", string(ev.EventType)),
			zap.String("message_id", ev.MessageID),
			zap.Error(err),
		)
		return false, err
	}
	return inserted, nil
}

func (s *Store) insert(ctx context.Context, ev domain.CanonicalEmailEvent, key string) (bool, error) {
	// raw_payload JSONB (nil or JSON string)
	var raw any
	if len(ev.RawPayload) > 0 {
		raw = string(jsonbSafe(ev.RawPayload))
	}

	ct, err := s.db.Pool.Exec(ctx, insertEventSQL,
		uuid.NewString(),
		string(ev.Provider),
		string(ev.EventType),
		ev.Email,
		ev.MessageID,
		ev.CampaignID,
		ev.TemplateID,
		ev.OccurredAt.UTC(),
		raw,
		key,
		s.now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert email event: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

var nulEscape = []byte(`\u0000`)

// jsonbSafe rewrites \u0000 escapes, which jsonb rejects, as the literal
// text "\u0000". Other escape pairs are copied unchanged.
func jsonbSafe(raw []byte) []byte {
	if !bytes.Contains(raw, nulEscape) {
		return raw
	}
	out := make([]byte, 0, len(raw)+8)
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			out = append(out, raw[i])
			continue
		}
		if bytes.HasPrefix(raw[i:], nulEscape) {
			out = append(out, `\\u0000`...)
			i += len(nulEscape) - 1
			continue
		}
		out = append(out, raw[i], raw[i+1])
		i++
	}
	return out
}

// RecordOperationalFailure writes a system row under a fresh random key.
// Errors are logged and dropped.
func (s *Store) RecordOperationalFailure(ctx context.Context, kind domain.FailureKind, details map[string]any) {
	ev := storage.FailureEvent(kind, details, uuid.NewString(), s.now())
	if _, err := s.insert(ctx, ev, uuid.NewString()); err != nil {
		s.log.Error("record operational failure failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *Store) Ready(ctx context.Context) error {
	if err := s.db.Ready(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
