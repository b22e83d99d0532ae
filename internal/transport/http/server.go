package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"example.com/emailevents/internal/config"
	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/ingest"
	"example.com/emailevents/internal/metrics"
	"example.com/emailevents/internal/storage"
)

const WebhookPath = "/api/webhooks/email"

// AlertRunner performs one check-and-dispatch cycle.
type AlertRunner interface {
	Run(ctx context.Context) []domain.AlertEvent
}

type ServerDeps struct {
	Cfg      config.Config
	Pipeline *ingest.Pipeline
	Store    storage.EventStore
	Alerts   AlertRunner
	Metrics  *metrics.Collector
	Log      *zap.Logger
	Now      func() time.Time
}

func (d *ServerDeps) Router() http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", d.HandleHealthz)
	r.Get("/readyz", d.HandleReadyz)

	r.Get(WebhookPath, d.HandleWebhookStatus)
	r.With(BodyLimit(d.Cfg.MaxBodyBytes)).Post(WebhookPath, d.HandleWebhook)

	r.Get("/api/alerts/check", d.HandleAlertCheck)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(d.Cfg.APIKeys))
		r.Use(RateLimitPerMinute(d.Cfg.RateLimitAnalyticsPerMin, d.Now))
		r.Get("/api/events", d.HandleListEvents)
		r.Get("/api/events/counts", d.HandleCountEvents)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
