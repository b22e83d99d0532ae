package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier sends one summary email per dispatch through Resend.
type EmailNotifier struct {
	sender emailSender
	from   string
	to     []string
	log    *zap.Logger
}

func NewEmailNotifier(apiKey, from string, to []string, log *zap.Logger) (*EmailNotifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	client := resend.NewClient(apiKey)
	return newEmailNotifier(client.Emails, from, to, log)
}

func newEmailNotifier(s emailSender, from string, to []string, log *zap.Logger) (*EmailNotifier, error) {
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("no recipients specified")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EmailNotifier{
		sender: s,
		from:   from,
		to:     to,
		log:    log.With(zap.String("component", "email-notifier")),
	}, nil
}

func (e *EmailNotifier) Type() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, alerts []domain.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    e.from,
		To:      e.to,
		Subject: subject(alerts),
		Text:    body(alerts),
	}
	res, err := e.sender.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	e.log.Info("alert email sent",
		zap.String("email_id", res.Id),
		zap.Strings("to", e.to),
		zap.Int("alerts", len(alerts)),
	)
	return nil
}

func subject(alerts []domain.AlertEvent) string {
	critical := 0
	for _, a := range alerts {
		if a.Severity == domain.SeverityCritical {
			critical++
		}
	}
	if len(alerts) == 1 {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alerts[0].Severity)), alerts[0].Rule)
	}
	return fmt.Sprintf("[email-events] %d alerts triggered (%d critical)", len(alerts), critical)
}

func body(alerts []domain.AlertEvent) string {
	var b strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&b, "%s (%s)\n", a.Rule, a.Severity)
		fmt.Fprintf(&b, "  metric:    %s = %g (threshold %g)\n", a.Metric, a.MetricValue, a.Threshold)
		fmt.Fprintf(&b, "  window:    %s .. %s\n", a.WindowStart.Format(time.RFC3339), a.WindowEnd.Format(time.RFC3339))
		fmt.Fprintf(&b, "  triggered: %s\n\n", a.TriggeredAt.Format(time.RFC3339))
	}
	return b.String()
}
