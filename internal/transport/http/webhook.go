package transporthttp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"example.com/emailevents/internal/config"
	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/idempotency"
	"example.com/emailevents/internal/ingest"
)

type webhookAck struct {
	Success          bool  `json:"success"`
	Inserted         bool  `json:"inserted"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

type webhookError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type webhookStatus struct {
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	Timestamp string `json:"timestamp"`
}

// HandleWebhook answers 200 for every authenticated request so the
// provider never retries or disables the webhook because of our faults.
func (d *ServerDeps) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer DrainBody(r)
	d.Metrics.WebhookReceived()

	if username, reason, ok := authenticate(r, d.Cfg.WebhookCredentials); !ok {
		ip := clientIP(r)
		d.Log.Warn("webhook authentication failed",
			zap.String("ip", ip),
			zap.String("reason", reason),
			zap.String("username", username),
		)
		d.Pipeline.RecordAuthFailure(ip, reason, username)
		w.Header().Set("WWW-Authenticate", `Basic realm="email-webhook", charset="UTF-8"`)
		writeJSON(w, http.StatusUnauthorized, webhookError{Error: "unauthorized"})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.Log.Error("webhook panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
			d.Pipeline.RecordIngestionFailure("handler", fmt.Errorf("panic: %v", rec), nil)
			writeJSON(w, http.StatusOK, webhookError{Error: "internal error"})
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.Log.Warn("webhook body read failed", zap.Error(err))
		d.Pipeline.RecordIngestionFailure("read", err, map[string]any{"bytes_read": len(body)})
		writeJSON(w, http.StatusOK, webhookError{Error: readErrorMessage(err)})
		return
	}

	res, err := d.Pipeline.Ingest(r.Context(), body)
	elapsed := time.Since(start)
	if err != nil {
		msg := "internal error"
		if errors.Is(err, ingest.ErrInvalidPayload) {
			msg = "invalid JSON payload"
		}
		writeJSON(w, http.StatusOK, webhookError{Error: msg})
		return
	}
	if res.StoreErr == nil {
		d.Metrics.EventStored(res.Inserted, elapsed)
	}

	if d.Cfg.SlowRequestThreshold > 0 && elapsed > d.Cfg.SlowRequestThreshold {
		d.Metrics.SlowRequest()
		d.Log.Warn("slow webhook request",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", d.Cfg.SlowRequestThreshold),
			zap.String("event_type", string(res.Event.EventType)),
			zap.String("message_id", res.Event.MessageID),
		)
	}

	d.Log.Info("webhook processed",
		zap.String("event_type", string(res.Event.EventType)),
		zap.String("message_id", res.Event.MessageID),
		zap.Bool("inserted", res.Inserted),
		zap.Bool("store_error", res.StoreErr != nil),
		zap.Duration("elapsed", elapsed),
	)
	writeJSON(w, http.StatusOK, webhookAck{
		Success:          true,
		Inserted:         res.Inserted,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}

// HandleWebhookStatus is an unauthenticated liveness probe for uptime checks.
func (d *ServerDeps) HandleWebhookStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, webhookStatus{
		Status:    "ok",
		Provider:  string(domain.ProviderPlunk),
		Timestamp: idempotency.FormatTime(d.Now()),
	})
}

// authenticate checks HTTP Basic credentials against the configured pairs
// in order. It returns the attempted username and, on failure, a reason.
func authenticate(r *http.Request, creds []config.Credential) (string, string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", "missing credentials", false
	}
	for _, c := range creds {
		if credentialMatches(c, username, password) {
			return username, "", true
		}
	}
	return username, "invalid credentials", false
}

func credentialMatches(c config.Credential, username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
	var passOK bool
	if isBcryptHash(c.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	}
	return userOK && passOK
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func readErrorMessage(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
	}
	return "could not read request body"
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
