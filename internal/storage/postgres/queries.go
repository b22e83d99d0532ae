package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/storage"
)

// eventType and campaignID are optional (nil means "no filter")
func (s *Store) QueryByTimeRange(ctx context.Context, start, end time.Time, eventType *domain.EventType, campaignID *string) ([]domain.StoredEvent, error) {
	cond := "WHERE occurred_at >= $1 AND occurred_at <= $2"
	args := []any{start.UTC(), end.UTC()}
	idx := 3

	if eventType != nil {
		cond += fmt.Sprintf(" AND event_type=$%d", idx)
		args = append(args, string(*eventType))
		idx++
	}
	if campaignID != nil {
		cond += fmt.Sprintf(" AND campaign_id=$%d", idx)
		args = append(args, *campaignID)
		idx++
	}
	args = append(args, storage.MaxQueryRows)

	sql := fmt.Sprintf(`
SELECT
  id::text, provider, event_type, email, message_id, campaign_id, template_id,
  occurred_at, COALESCE(raw_payload::text, 'null'), idempotency_key, created_at
FROM email_events
%s
ORDER BY occurred_at DESC
LIMIT $%d`, cond, idx)

	out, err := s.scanEvents(ctx, sql, args)
	if err != nil {
		s.log.Error("query events failed",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

func (s *Store) scanEvents(ctx context.Context, sql string, args []any) ([]domain.StoredEvent, error) {
	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredEvent
	for rows.Next() {
		var (
			ev                  domain.StoredEvent
			provider, eventType string
			raw                 string
		)
		if err := rows.Scan(
			&ev.ID, &provider, &eventType, &ev.Email, &ev.MessageID,
			&ev.CampaignID, &ev.TemplateID, &ev.OccurredAt, &raw,
			&ev.IdempotencyKey, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Provider = domain.Provider(provider)
		ev.EventType = domain.EventType(eventType)
		ev.RawPayload = []byte(raw)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) CountByType(ctx context.Context, start, end time.Time) (map[domain.EventType]int64, error) {
	counts, err := s.countByType(ctx, start, end)
	if err != nil {
		s.log.Error("count events failed",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
		return nil, err
	}
	return counts, nil
}

const countByTypeSQL = `
SELECT event_type, COUNT(*)::bigint
FROM email_events
WHERE occurred_at >= $1 AND occurred_at <= $2
GROUP BY event_type`

func (s *Store) countByType(ctx context.Context, start, end time.Time) (map[domain.EventType]int64, error) {
	rows, err := s.db.Pool.Query(ctx, countByTypeSQL, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)
	for rows.Next() {
		var (
			eventType string
			n         int64
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.EventType(eventType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
