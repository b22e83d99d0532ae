package postgres

import (
	"context"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
)

const upsertMessageSQL = `
INSERT INTO email_messages (
  message_id, email, campaign_id, template_id, last_event_type, last_event_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (message_id) DO UPDATE SET
  email = EXCLUDED.email,
  campaign_id = EXCLUDED.campaign_id,
  template_id = EXCLUDED.template_id,
  last_event_type = EXCLUDED.last_event_type,
  last_event_at = EXCLUDED.last_event_at,
  updated_at = EXCLUDED.updated_at`

// UpsertMessage is last-write-wins; failures never reach the caller.
func (s *Store) UpsertMessage(ctx context.Context, messageID string, ev domain.CanonicalEmailEvent) {
	_, err := s.db.Pool.Exec(ctx, upsertMessageSQL,
		messageID,
		ev.Email,
		ev.CampaignID,
		ev.TemplateID,
		string(ev.EventType),
		ev.OccurredAt.UTC(),
		s.now(),
	)
	if err != nil {
		s.log.Warn("upsert message failed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
