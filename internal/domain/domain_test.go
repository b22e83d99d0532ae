package domain

import (
	"testing"
	"time"
)

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in   string
		want EventType
	}{
		{"sent", EventSent},
		{"DELIVERED", EventDelivered},
		{"  Open ", EventOpen},
		{"click", EventClick},
		{"bounce", EventBounce},
		{"unsubscribe", EventUnsubscribe},
		{"resubscribe", EventResubscribe},
		{"failed", EventFailed},
		{"something_unrecognized", EventFailed},
		{"", EventFailed},
		{"ingestion_failure", EventFailed},
		{"auth_failure", EventFailed},
		{"opened", EventFailed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseEventType(tt.in); got != tt.want {
				t.Errorf("ParseEventType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLookupEventType(t *testing.T) {
	tests := []struct {
		in     string
		want   EventType
		wantOK bool
	}{
		{"bounce", EventBounce, true},
		{" Click", EventClick, true},
		{"ingestion_failure", EventIngestionFailure, true},
		{"AUTH_FAILURE", EventAuthFailure, true},
		{"email.sent", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := LookupEventType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("LookupEventType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFailureKind_EventType(t *testing.T) {
	if got := FailureAuth.EventType(); got != EventAuthFailure {
		t.Errorf("FailureAuth.EventType() = %q", got)
	}
	if got := FailureIngestion.EventType(); got != EventIngestionFailure {
		t.Errorf("FailureIngestion.EventType() = %q", got)
	}
}

func TestAlertRule_Window(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := AlertRule{WindowMinutes: 60}
	start, end := r.Window(now)
	if !end.Equal(now) {
		t.Errorf("end = %v, want %v", end, now)
	}
	if want := now.Add(-time.Hour); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestValidateRules(t *testing.T) {
	valid := AlertRule{Name: "High Bounce Rate", Metric: MetricBounceRate, Threshold: 0.05, WindowMinutes: 60, Severity: SeverityCritical}

	tests := []struct {
		name       string
		rules      []AlertRule
		wantFields []string
	}{
		{
			name:  "valid",
			rules: []AlertRule{valid},
		},
		{
			name:       "missing everything",
			rules:      []AlertRule{{}},
			wantFields: []string{"rules[0].name", "rules[0].metric", "rules[0].severity", "rules[0].window_minutes"},
		},
		{
			name:       "unknown metric",
			rules:      []AlertRule{{Name: "x", Metric: "spam_rate", Severity: SeverityWarning, WindowMinutes: 5}},
			wantFields: []string{"rules[0].metric"},
		},
		{
			name:       "ratio above one",
			rules:      []AlertRule{{Name: "x", Metric: MetricBounceRate, Threshold: 5, Severity: SeverityWarning, WindowMinutes: 5}},
			wantFields: []string{"rules[0].threshold"},
		},
		{
			name:       "duplicate names",
			rules:      []AlertRule{valid, valid},
			wantFields: []string{"rules[1].name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRules(tt.rules)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("ValidateRules() = %v, want fields %v", errs, tt.wantFields)
			}
			for i, fe := range errs {
				if fe.Field != tt.wantFields[i] {
					t.Errorf("errs[%d].Field = %q, want %q", i, fe.Field, tt.wantFields[i])
				}
			}
		})
	}
}
