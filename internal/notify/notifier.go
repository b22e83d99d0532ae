// Package notify delivers triggered alerts to the log and to optional
// external channels.
package notify

import (
	"context"

	"example.com/emailevents/internal/domain"
)

// Notifier forwards one batch of alerts to an external channel.
type Notifier interface {
	Type() string
	Send(ctx context.Context, alerts []domain.AlertEvent) error
}
