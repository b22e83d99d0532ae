package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/storage"
)

type Engine struct {
	store     storage.EventStore
	rules     []domain.AlertRule
	minSample int64
	now       func() time.Time
	log       *zap.Logger
}

// NewEngine validates rules and returns an engine that evaluates them in
// order. minSample <= 0 selects DefaultMinSample.
func NewEngine(store storage.EventStore, rules []domain.AlertRule, minSample int, log *zap.Logger) (*Engine, error) {
	if errs := domain.ValidateRules(rules); len(errs) > 0 {
		return nil, fmt.Errorf("invalid alert rules: %v", errs)
	}
	if minSample <= 0 {
		minSample = DefaultMinSample
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		rules:     append([]domain.AlertRule(nil), rules...),
		minSample: int64(minSample),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With(zap.String("component", "alert-engine")),
	}, nil
}

func (e *Engine) Rules() []domain.AlertRule {
	return append([]domain.AlertRule(nil), e.rules...)
}

// CheckAlerts evaluates every rule against its own window. It never fails:
// a store error or panic ends the cycle early, is recorded as an ingestion
// failure, and the alerts gathered so far are returned.
func (e *Engine) CheckAlerts(ctx context.Context) (alerts []domain.AlertEvent) {
	now := e.now()
	var current string

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("alert check panic recovered",
				zap.String("rule", current),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			e.recordFailure(ctx, current, fmt.Errorf("panic: %v", r))
		}
	}()

	for _, rule := range e.rules {
		current = rule.Name
		start, end := rule.Window(now)

		counts, err := e.store.CountByType(ctx, start, end)
		if err != nil {
			e.log.Error("alert check aborted",
				zap.String("rule", rule.Name),
				zap.Int("alerts_so_far", len(alerts)),
				zap.Error(err),
			)
			e.recordFailure(ctx, rule.Name, err)
			return alerts
		}

		value, ok := e.evaluate(rule, counts)
		if !ok || value <= rule.Threshold {
			continue
		}
		alerts = append(alerts, domain.AlertEvent{
			Rule:        rule.Name,
			Metric:      rule.Metric,
			Severity:    rule.Severity,
			MetricValue: value,
			Threshold:   rule.Threshold,
			WindowStart: start,
			WindowEnd:   end,
			TriggeredAt: now,
		})
	}

	e.log.Debug("alert check complete",
		zap.Int("rules", len(e.rules)),
		zap.Int("triggered", len(alerts)),
	)
	return alerts
}

// evaluate returns the rule's metric value, or false when the rule does
// not apply to this window.
func (e *Engine) evaluate(rule domain.AlertRule, counts map[domain.EventType]int64) (float64, bool) {
	switch rule.Metric {
	case domain.MetricBounceRate:
		sent := counts[domain.EventSent]
		if sent <= e.minSample {
			return 0, false
		}
		return float64(counts[domain.EventBounce]) / float64(sent), true
	case domain.MetricDeliveryFailure:
		return float64(counts[domain.EventFailed]), true
	case domain.MetricIngestionFailures:
		return float64(counts[domain.EventIngestionFailure]), true
	case domain.MetricAuthFailures:
		return float64(counts[domain.EventAuthFailure]), true
	default:
		return 0, false
	}
}

func (e *Engine) recordFailure(ctx context.Context, rule string, err error) {
	e.store.RecordOperationalFailure(context.WithoutCancel(ctx), domain.FailureIngestion, map[string]any{
		"stage": "alert_check",
		"rule":  rule,
		"error": err.Error(),
	})
}
