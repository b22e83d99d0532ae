package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
)

// Dispatcher is the final sink for alerts. It never fails: every alert is
// logged, then each notifier is tried in turn.
type Dispatcher struct {
	notifiers []Notifier
	log       *zap.Logger
}

func NewDispatcher(log *zap.Logger, notifiers ...Notifier) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		notifiers: notifiers,
		log:       log.With(zap.String("component", "alert-dispatcher")),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, alerts []domain.AlertEvent) {
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		d.log.Warn("alert triggered",
			zap.String("rule", a.Rule),
			zap.String("metric", string(a.Metric)),
			zap.String("severity", string(a.Severity)),
			zap.Float64("value", a.MetricValue),
			zap.Float64("threshold", a.Threshold),
			zap.Time("window_start", a.WindowStart),
			zap.Time("window_end", a.WindowEnd),
			zap.Time("triggered_at", a.TriggeredAt),
		)
	}
	for _, n := range d.notifiers {
		if err := d.send(ctx, n, alerts); err != nil {
			d.log.Error("alert notification failed",
				zap.String("notifier", n.Type()),
				zap.Int("alerts", len(alerts)),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, n Notifier, alerts []domain.AlertEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.Send(ctx, alerts)
}
