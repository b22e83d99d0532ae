// Package metrics keeps process-local counters for the webhook pipeline and
// optionally publishes snapshots to Redis.
package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Key is the Redis key snapshots are written under.
	Key = "metrics:email-events"
	// TTL is how long a snapshot stays in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is used when SetReportInterval is never called.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the JSON document written to Redis.
type Snapshot struct {
	Service     string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`

	WebhookReceived   uint64 `json:"webhook_received"`
	EventsInserted    uint64 `json:"events_inserted"`
	EventsDuplicate   uint64 `json:"events_duplicate"`
	AuthFailures      uint64 `json:"auth_failures"`
	IngestionFailures uint64 `json:"ingestion_failures"`
	SlowRequests      uint64 `json:"slow_requests"`
	TasksDropped      uint64 `json:"tasks_dropped"`
	AlertsTriggered   uint64 `json:"alerts_triggered"`

	AvgProcessingMs float64 `json:"avg_processing_ms"`
}

// Collector is safe for concurrent use. A nil *Collector discards
// everything, so components can be built without one.
type Collector struct {
	redis          redis.Cmdable
	log            *zap.Logger
	startedAt      time.Time
	reportInterval time.Duration

	webhookReceived   atomic.Uint64
	eventsInserted    atomic.Uint64
	eventsDuplicate   atomic.Uint64
	authFailures      atomic.Uint64
	ingestionFailures atomic.Uint64
	slowRequests      atomic.Uint64
	tasksDropped      atomic.Uint64
	alertsTriggered   atomic.Uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector builds a collector. rdb may be nil, in which case Start
// only waits for shutdown.
func NewCollector(rdb redis.Cmdable, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		redis:          rdb,
		log:            log.With(zap.String("component", "metrics")),
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		stopCh:         make(chan struct{}),
	}
}

func (c *Collector) SetReportInterval(d time.Duration) {
	if d > 0 {
		c.reportInterval = d
	}
}

func (c *Collector) WebhookReceived() {
	if c != nil {
		c.webhookReceived.Add(1)
	}
}

// EventStored records the outcome of one insert and the request latency.
func (c *Collector) EventStored(inserted bool, latency time.Duration) {
	if c == nil {
		return
	}
	if inserted {
		c.eventsInserted.Add(1)
	} else {
		c.eventsDuplicate.Add(1)
	}
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

func (c *Collector) AuthFailure() {
	if c != nil {
		c.authFailures.Add(1)
	}
}

func (c *Collector) IngestionFailure() {
	if c != nil {
		c.ingestionFailures.Add(1)
	}
}

func (c *Collector) SlowRequest() {
	if c != nil {
		c.slowRequests.Add(1)
	}
}

func (c *Collector) TaskDropped() {
	if c != nil {
		c.tasksDropped.Add(1)
	}
}

func (c *Collector) AlertsTriggered(n int) {
	if c != nil && n > 0 {
		c.alertsTriggered.Add(uint64(n))
	}
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	var avg float64
	if n := c.latencyCount.Load(); n > 0 {
		avg = float64(c.totalLatencyNs.Load()) / float64(n) / float64(time.Millisecond)
	}
	return Snapshot{
		Service:           "email-events",
		StartedAt:         c.startedAt,
		LastUpdated:       time.Now().UTC(),
		WebhookReceived:   c.webhookReceived.Load(),
		EventsInserted:    c.eventsInserted.Load(),
		EventsDuplicate:   c.eventsDuplicate.Load(),
		AuthFailures:      c.authFailures.Load(),
		IngestionFailures: c.ingestionFailures.Load(),
		SlowRequests:      c.slowRequests.Load(),
		TasksDropped:      c.tasksDropped.Load(),
		AlertsTriggered:   c.alertsTriggered.Load(),
		AvgProcessingMs:   avg,
	}
}

// Start writes a snapshot every report interval until ctx is done or
// Stop is called, then writes a final one.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.Report(context.Background())
				return
			case <-c.stopCh:
				c.Report(context.Background())
				return
			case <-ticker.C:
				c.Report(ctx)
			}
		}
	}()
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Report writes one snapshot to Redis. Errors are logged.
func (c *Collector) Report(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		c.log.Error("marshal metrics snapshot failed", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, Key, data, TTL).Err(); err != nil {
		c.log.Warn("write metrics snapshot failed", zap.String("key", Key), zap.Error(err))
	}
}
