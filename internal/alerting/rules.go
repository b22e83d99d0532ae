// Package alerting evaluates threshold rules over recent event counts.
package alerting

import "example.com/emailevents/internal/domain"

// DefaultMinSample is the number of sent emails a bounce rate must exceed
// before it is evaluated.
const DefaultMinSample = 10

// DefaultRules returns a fresh copy of the built-in rule set.
func DefaultRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			Name:          "High Bounce Rate",
			Metric:        domain.MetricBounceRate,
			Threshold:     0.05,
			WindowMinutes: 60,
			Severity:      domain.SeverityCritical,
		},
		{
			Name:          "Delivery Failures",
			Metric:        domain.MetricDeliveryFailure,
			Threshold:     10,
			WindowMinutes: 60,
			Severity:      domain.SeverityWarning,
		},
		{
			Name:          "Ingestion Failures",
			Metric:        domain.MetricIngestionFailures,
			Threshold:     5,
			WindowMinutes: 15,
			Severity:      domain.SeverityCritical,
		},
		{
			Name:          "Webhook Auth Failures",
			Metric:        domain.MetricAuthFailures,
			Threshold:     20,
			WindowMinutes: 15,
			Severity:      domain.SeverityWarning,
		},
	}
}
