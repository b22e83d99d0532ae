package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/emailevents/internal/metrics"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Tasks runs fire-and-forget side effects on a bounded queue. Tasks never
// inherit request cancellation; each one gets its own timeout.
type Tasks struct {
	queue   chan task
	workers int
	timeout time.Duration
	metrics *metrics.Collector
	log     *zap.Logger

	base      context.Context
	startOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

func NewTasks(queueMaxSize, workers int, timeout time.Duration, m *metrics.Collector, log *zap.Logger) *Tasks {
	if queueMaxSize <= 0 {
		queueMaxSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tasks{
		queue:   make(chan task, queueMaxSize),
		workers: workers,
		timeout: timeout,
		metrics: m,
		log:     log.With(zap.String("component", "tasks")),
	}
}

// Start launches the workers. Values from ctx reach every task; its
// cancellation does not.
func (t *Tasks) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.base = context.WithoutCancel(ctx)
		for i := 0; i < t.workers; i++ {
			t.wg.Add(1)
			go t.worker()
		}
	})
}

// Go queues fn without blocking. It reports false when the task was
// dropped because the queue is full or the runner is closed.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.log.Warn("task dropped: runner closed", zap.String("task", name))
		t.metrics.TaskDropped()
		return false
	}
	select {
	case t.queue <- task{name: name, fn: fn}:
		return true
	default:
		t.log.Warn("task dropped: queue full", zap.String("task", name), zap.Int("queue_size", cap(t.queue)))
		t.metrics.TaskDropped()
		return false
	}
}

// Close stops intake and waits for queued tasks to finish.
func (t *Tasks) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	t.Start(context.Background())
	t.wg.Wait()
}

func (t *Tasks) worker() {
	defer t.wg.Done()
	for tk := range t.queue {
		t.run(tk)
	}
}

func (t *Tasks) run(tk task) {
	ctx := t.base
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return tk.fn(ctx)
	}()
	if err != nil {
		t.log.Warn("background task failed",
			zap.String("task", tk.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	t.log.Debug("background task done", zap.String("task", tk.name), zap.Duration("elapsed", time.Since(start)))
}
