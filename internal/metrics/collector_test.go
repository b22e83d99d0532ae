package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector(nil, nil)
	c.WebhookReceived()
	c.WebhookReceived()
	c.EventStored(true, 10*time.Millisecond)
	c.EventStored(false, 30*time.Millisecond)
	c.AuthFailure()
	c.IngestionFailure()
	c.SlowRequest()
	c.TaskDropped()
	c.AlertsTriggered(3)
	c.AlertsTriggered(0)

	s := c.Snapshot()
	if s.WebhookReceived != 2 || s.EventsInserted != 1 || s.EventsDuplicate != 1 {
		t.Errorf("webhook counters = %+v", s)
	}
	if s.AuthFailures != 1 || s.IngestionFailures != 1 || s.SlowRequests != 1 || s.TasksDropped != 1 {
		t.Errorf("failure counters = %+v", s)
	}
	if s.AlertsTriggered != 3 {
		t.Errorf("AlertsTriggered = %d, want 3", s.AlertsTriggered)
	}
	if s.AvgProcessingMs != 20 {
		t.Errorf("AvgProcessingMs = %v, want 20", s.AvgProcessingMs)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.WebhookReceived()
	c.EventStored(true, time.Second)
	c.TaskDropped()
	c.Report(context.Background())
	if s := c.Snapshot(); s.WebhookReceived != 0 {
		t.Errorf("nil snapshot = %+v", s)
	}
}

func TestCollector_ReportWritesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewCollector(rdb, nil)
	c.EventStored(true, time.Millisecond)
	c.Report(context.Background())

	raw, err := mr.Get(Key)
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if s.EventsInserted != 1 || s.Service != "email-events" {
		t.Errorf("snapshot = %+v", s)
	}
	if ttl := mr.TTL(Key); ttl != TTL {
		t.Errorf("ttl = %v, want %v", ttl, TTL)
	}
}

func TestCollector_StopWritesFinalSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewCollector(rdb, nil)
	c.SetReportInterval(time.Hour)
	c.Start(context.Background())
	c.WebhookReceived()
	c.Stop()
	c.Stop()

	if !mr.Exists(Key) {
		t.Fatal("no snapshot written on stop")
	}
}

func TestCollector_ReportSurvivesRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	NewCollector(rdb, nil).Report(ctx)
}
