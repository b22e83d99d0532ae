package domain

import (
	"fmt"
	"strings"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

const (
	MaxRuleNameLen       = 128
	MaxRuleWindowMinutes = 7 * 24 * 60
)

// ValidateRule performs strict checks on one alert rule.
func ValidateRule(r AlertRule) []FieldError {
	var errs []FieldError

	name := strings.TrimSpace(r.Name)
	if name == "" {
		errs = append(errs, FieldError{"name", "required"})
	} else if len(name) > MaxRuleNameLen {
		errs = append(errs, FieldError{"name", fmt.Sprintf("max length %d", MaxRuleNameLen)})
	}

	switch r.Metric {
	case MetricBounceRate, MetricDeliveryFailure, MetricIngestionFailures, MetricAuthFailures:
	case "":
		errs = append(errs, FieldError{"metric", "required"})
	default:
		errs = append(errs, FieldError{"metric", fmt.Sprintf("unknown metric %q", r.Metric)})
	}

	switch r.Severity {
	case SeverityWarning, SeverityCritical:
	default:
		errs = append(errs, FieldError{"severity", "must be warning or critical"})
	}

	if r.WindowMinutes <= 0 {
		errs = append(errs, FieldError{"window_minutes", "must be positive"})
	} else if r.WindowMinutes > MaxRuleWindowMinutes {
		errs = append(errs, FieldError{"window_minutes", fmt.Sprintf("max %d", MaxRuleWindowMinutes)})
	}

	if r.Threshold < 0 {
		errs = append(errs, FieldError{"threshold", "must not be negative"})
	}
	if r.Metric == MetricBounceRate && r.Threshold > 1 {
		errs = append(errs, FieldError{"threshold", "bounce_rate threshold is a ratio in [0,1]"})
	}

	return errs
}

// ValidateRules validates every rule and rejects duplicate names.
// Field names are prefixed with the rule index, e.g. "rules[2].metric".
func ValidateRules(rules []AlertRule) []FieldError {
	var all []FieldError
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		prefix := fmt.Sprintf("rules[%d].", i)
		for _, fe := range ValidateRule(r) {
			all = append(all, FieldError{prefix + fe.Field, fe.Msg})
		}
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if key == "" {
			continue
		}
		if j, ok := seen[key]; ok {
			all = append(all, FieldError{prefix + "name", fmt.Sprintf("duplicates rules[%d]", j)})
			continue
		}
		seen[key] = i
	}
	return all
}
