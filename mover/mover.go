// Package mover moves accepted crash reports to their durable home.
//
// A bounded FIFO channel feeds a fixed-size worker pool. Each job runs
// two phases in order: save the report to the store, then publish the
// crash id. Both phases retry with a constant wait; a report that
// cannot be saved is dropped, a report that cannot be published is
// still considered handled because the store write is what matters.
// The HTTP handler has already acknowledged the client by the time a
// job is enqueued, so nothing here surfaces to the submitter.
package mover

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/log"
	"github.com/pithecene-io/fissure/metrics"
	"github.com/pithecene-io/fissure/publish"
	"github.com/pithecene-io/fissure/storage"
	"github.com/pithecene-io/fissure/types"
)

// Defaults for the mover configuration.
const (
	DefaultQueueSize   = 512
	DefaultWorkers     = 1
	DefaultMaxAttempts = 5
	DefaultRetrySleep  = 2 * time.Second
)

// RetryPolicy bounds the per-phase retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int
	// Sleep is the constant wait between attempts.
	Sleep time.Duration
}

// Config configures the mover.
type Config struct {
	// QueueSize is the job queue capacity (default 512).
	QueueSize int
	// Workers is the worker pool size (default 1).
	Workers int
	// Retry bounds the save and publish retry loops.
	Retry RetryPolicy
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.Sleep <= 0 {
		c.Retry.Sleep = DefaultRetrySleep
	}
	return c
}

// Option configures a Mover.
type Option func(*Mover)

// WithSleep replaces the retry sleep function. Used by tests to avoid
// real waits.
func WithSleep(fn func(time.Duration)) Option {
	return func(m *Mover) {
		m.sleep = fn
	}
}

// Mover owns the crash report work queue and worker pool.
type Mover struct {
	config Config
	store  storage.Store
	pub    publish.Publisher
	logger *log.Logger
	sleep  func(time.Duration)

	queue    chan *types.CrashReport
	pending  atomic.Int64
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Mover. Call Start to spin up the workers.
func New(store storage.Store, pub publish.Publisher, logger *log.Logger, cfg Config, opts ...Option) *Mover {
	cfg = cfg.withDefaults()
	m := &Mover{
		config: cfg,
		store:  store,
		pub:    pub,
		logger: logger,
		sleep:  time.Sleep,
		queue:  make(chan *types.CrashReport, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start spins up the worker pool.
func (m *Mover) Start() {
	for i := 0; i < m.config.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.logger.Info("crash mover started",
		zap.Int("workers", m.config.Workers),
		zap.Int("queue_size", m.config.QueueSize))
}

// Enqueue hands a crash report to the worker pool without blocking.
// Returns false when the queue is full; the report is lost and the
// loss is logged and counted.
func (m *Mover) Enqueue(report *types.CrashReport) bool {
	select {
	case m.queue <- report:
		m.pending.Add(1)
		metrics.WorkQueueSize.Set(float64(m.pending.Load()))
		return true
	default:
		metrics.WorkQueueRejected.Inc()
		m.logger.Error("work queue full; crash report lost",
			zap.String("crash_id", report.CrashID))
		return false
	}
}

// QueueDepth reports the number of jobs queued or in flight.
func (m *Mover) QueueDepth() int {
	return int(m.pending.Load())
}

// HasWorkToDo reports whether jobs remain queued or in flight. Wired
// as a health lifer so shutdown waits for the queue to drain.
func (m *Mover) HasWorkToDo() bool {
	return m.pending.Load() > 0
}

// RegisterHealth wires the mover into the health registry: a heartbeat
// reporting queue depth and the store/publish reachability checks, and
// a lifer holding shutdown open while work remains.
func (m *Mover) RegisterHealth(registry *health.Registry) {
	registry.RegisterHeartbeat("crashmover", func(ctx context.Context, state *health.State) {
		state.AddInfo("crashmover.work_queue_size", m.QueueDepth())
		m.store.CheckHealth(ctx, state)
		m.pub.CheckHealth(ctx, state)
	})
	registry.RegisterLifer(m.HasWorkToDo)
}

// Stop drains the queue and waits up to grace for in-flight work.
// Callers must stop producing before calling Stop. Safe to call more
// than once; later calls return immediately.
func (m *Mover) Stop(grace time.Duration) {
	m.stopOnce.Do(func() {
		close(m.queue)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Info("crash mover drained")
		case <-time.After(grace):
			m.logger.Error("shutdown grace expired; queued crash reports lost",
				zap.Int("pending", m.QueueDepth()))
		}
	})
}

func (m *Mover) worker() {
	defer m.wg.Done()
	for report := range m.queue {
		m.handle(report)
		m.pending.Add(-1)
		metrics.WorkQueueSize.Set(float64(m.pending.Load()))
	}
}

// handle runs the save and publish phases for one report.
func (m *Mover) handle(report *types.CrashReport) {
	ctx := context.Background()
	logger := m.logger.With(zap.String("crash_id", report.CrashID))

	err := m.withRetry(logger, "save", metrics.SaveCrashException, func() error {
		return m.store.SaveCrash(ctx, report)
	})
	if err != nil {
		logger.Error("too many errors trying to save; dropped", zap.Error(err))
		metrics.SaveCrashDropped.Inc()
		return
	}

	err = m.withRetry(logger, "publish", metrics.PublishCrashException, func() error {
		return m.pub.PublishCrashID(ctx, report.CrashID)
	})
	if err != nil {
		// The report is durable; a downstream self-healing process
		// republishes ids that never made it to the queue.
		logger.Error("too many errors trying to publish; dropped", zap.Error(err))
		metrics.PublishCrashDropped.Inc()
	}

	metrics.SaveCrash.Inc()
	if !report.ReceivedAt.IsZero() {
		metrics.CrashHandlingTime.Observe(time.Since(report.ReceivedAt).Seconds())
	}
	logger.Info("crash report saved")
}

// withRetry runs fn up to the configured attempts with a constant wait
// between tries. Every failed attempt is logged and counted.
func (m *Mover) withRetry(logger *log.Logger, phase string, counter prometheus.Counter, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= m.config.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			m.sleep(m.config.Retry.Sleep)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		counter.Inc()
		logger.Warn("phase attempt failed",
			zap.String("phase", phase),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	return lastErr
}
