package domain

import "time"

// Metric names a quantity an alert rule watches.
type Metric string

const (
	MetricBounceRate        Metric = "bounce_rate"
	MetricDeliveryFailure   Metric = "delivery_failure"
	MetricIngestionFailures Metric = "ingestion_failures"
	MetricAuthFailures      Metric = "auth_failures"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertRule is static configuration; it is never persisted.
type AlertRule struct {
	Name          string   `json:"name"`
	Metric        Metric   `json:"metric"`
	Threshold     float64  `json:"threshold"`
	WindowMinutes int      `json:"window_minutes"`
	Severity      Severity `json:"severity"`
}

// Window returns the rule's evaluation window ending at now.
func (r AlertRule) Window(now time.Time) (start, end time.Time) {
	return now.Add(-time.Duration(r.WindowMinutes) * time.Minute), now
}

// AlertEvent is produced by one evaluation cycle and discarded after dispatch.
type AlertEvent struct {
	Rule        string    `json:"rule"`
	Metric      Metric    `json:"metric"`
	Severity    Severity  `json:"severity"`
	MetricValue float64   `json:"metric_value"`
	Threshold   float64   `json:"threshold"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	TriggeredAt time.Time `json:"triggered_at"`
}
