// Package ingest turns authenticated webhook bodies into stored events and
// schedules their side effects.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/idempotency"
	"example.com/emailevents/internal/metrics"
	"example.com/emailevents/internal/normalize"
	"example.com/emailevents/internal/storage"
)

// ErrInvalidPayload marks bodies that could not be read as JSON.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// errPanic marks a recovered panic inside the pipeline.
var errPanic = errors.New("internal error")

const maxExcerpt = 512

type Result struct {
	Inserted bool
	Key      string
	Event    domain.CanonicalEmailEvent
	// StoreErr is set when the insert failed. The failure has already
	// been queued for recording; callers still acknowledge the request.
	StoreErr error
}

type Pipeline struct {
	store      storage.EventStore
	normalizer *normalize.Normalizer
	tasks      *Tasks
	metrics    *metrics.Collector
	log        *zap.Logger
}

func NewPipeline(store storage.EventStore, n *normalize.Normalizer, tasks *Tasks, m *metrics.Collector, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:      store,
		normalizer: n,
		tasks:      tasks,
		metrics:    m,
		log:        log.With(zap.String("component", "ingest")),
	}
}

// Ingest parses, normalizes, and stores one webhook body. The returned
// error is ErrInvalidPayload for unparseable bodies or an internal error
// for a recovered panic; store failures are reported in Result.
func (p *Pipeline) Ingest(ctx context.Context, body []byte) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("ingest panic recovered", zap.Any("panic", r), zap.Stack("stack"))
			p.RecordIngestionFailure("panic", fmt.Errorf("%v", r), map[string]any{
				"body_excerpt": excerpt(body),
			})
			res, err = Result{}, errPanic
		}
	}()

	p.log.Info("webhook payload received", zap.ByteString("payload", body))

	raw, err := decode(body)
	if err != nil {
		p.log.Warn("webhook payload rejected", zap.Error(err), zap.Int("bytes", len(body)))
		p.RecordIngestionFailure("parse", err, map[string]any{
			"body_excerpt": excerpt(body),
		})
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev := p.normalizer.Normalize(raw)
	key := idempotency.GenerateKey(ev)
	res = Result{Key: key, Event: ev}

	inserted, err := p.store.Insert(ctx, ev, key)
	if err != nil {
		res.StoreErr = err
		p.RecordIngestionFailure("insert", err, map[string]any{
			"message_id":      ev.MessageID,
			"event_type":      string(ev.EventType),
			"idempotency_key": key,
		})
		return res, nil
	}
	res.Inserted = inserted

	if inserted {
		messageID := ev.MessageID
		p.tasks.Go("upsert-message", func(ctx context.Context) error {
			p.store.UpsertMessage(ctx, messageID, ev)
			return nil
		})
	} else {
		p.log.Debug("duplicate event ignored",
			zap.String("idempotency_key", key),
			zap.String("message_id", ev.MessageID),
		)
	}
	return res, nil
}

// RecordIngestionFailure queues a telemetry row for a failed stage.
func (p *Pipeline) RecordIngestionFailure(stage string, cause error, extra map[string]any) {
	p.metrics.IngestionFailure()
	details := map[string]any{
		"stage":       stage,
		"occurred_at": time.Now().UTC().Format(idempotency.ISO8601Millis),
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	for k, v := range extra {
		details[k] = v
	}
	p.tasks.Go("record-ingestion-failure", func(ctx context.Context) error {
		p.store.RecordOperationalFailure(ctx, domain.FailureIngestion, details)
		return nil
	})
}

// RecordAuthFailure queues a telemetry row for a rejected webhook call.
func (p *Pipeline) RecordAuthFailure(ip, reason, username string) {
	p.metrics.AuthFailure()
	details := map[string]any{
		"ip":     ip,
		"reason": reason,
	}
	if username != "" {
		details["username"] = username
	}
	p.tasks.Go("record-auth-failure", func(ctx context.Context) error {
		p.store.RecordOperationalFailure(ctx, domain.FailureAuth, details)
		return nil
	})
}

// decode accepts exactly one JSON value and keeps numbers as json.Number.
func decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return raw, nil
}

func excerpt(body []byte) string {
	if len(body) > maxExcerpt {
		return string(body[:maxExcerpt])
	}
	return string(body)
}
