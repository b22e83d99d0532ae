package transporthttp

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type alertSummary struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Value    float64 `json:"value"`
}

type alertCheckResponse struct {
	Success   bool           `json:"success"`
	Triggered int            `json:"triggered"`
	Alerts    []alertSummary `json:"alerts"`
}

// HandleAlertCheck runs one alert cycle for an external scheduler. When
// CRON_SECRET is unset the endpoint is open.
func (d *ServerDeps) HandleAlertCheck(w http.ResponseWriter, r *http.Request) {
	if secret := d.Cfg.CronSecret; secret != "" {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			d.Log.Warn("alert check rejected", zap.String("ip", clientIP(r)))
			writeJSON(w, http.StatusUnauthorized, webhookError{Error: "unauthorized"})
			return
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.Log.Error("alert check panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
			writeJSON(w, http.StatusInternalServerError, webhookError{Error: "alert check failed"})
		}
	}()

	alerts := d.Alerts.Run(r.Context())

	resp := alertCheckResponse{
		Success:   true,
		Triggered: len(alerts),
		Alerts:    make([]alertSummary, 0, len(alerts)),
	}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, alertSummary{
			Rule:     a.Rule,
			Severity: string(a.Severity),
			Value:    a.MetricValue,
		})
	}
	d.Log.Info("alert check complete", zap.Int("triggered", len(alerts)))
	writeJSON(w, http.StatusOK, resp)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
