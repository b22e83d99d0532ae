package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/domain"
	"example.com/emailevents/internal/metrics"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, alerts []domain.AlertEvent)
}

// Scheduler runs check-and-dispatch cycles, either on demand or on a
// ticker. Cycles are not mutually exclusive.
type Scheduler struct {
	engine     *Engine
	dispatcher Dispatcher
	interval   time.Duration
	metrics    *metrics.Collector
	log        *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler builds a scheduler. interval <= 0 disables the ticker;
// Run still works.
func NewScheduler(engine *Engine, d Dispatcher, interval time.Duration, m *metrics.Collector, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		engine:     engine,
		dispatcher: d,
		interval:   interval,
		metrics:    m,
		log:        log.With(zap.String("component", "alert-scheduler")),
		stopCh:     make(chan struct{}),
	}
}

// Run performs one cycle and returns the alerts it dispatched.
func (s *Scheduler) Run(ctx context.Context) []domain.AlertEvent {
	alerts := s.engine.CheckAlerts(ctx)
	s.metrics.AlertsTriggered(len(alerts))
	s.dispatcher.Dispatch(ctx, alerts)
	return alerts
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("in-process alert checks disabled")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				alerts := s.Run(ctx)
				s.log.Debug("periodic alert check complete", zap.Int("triggered", len(alerts)))
			}
		}
	}()
	s.log.Info("in-process alert checks started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
