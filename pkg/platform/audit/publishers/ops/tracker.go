// Package ops provides a fire-and-forget tracker for operational audit events.
//
// Track never blocks the caller and never returns an error: events are
// sampled, queued and persisted by a background worker. A circuit breaker
// stops persistence attempts while the store is failing.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/audit/worker"
	"rxvc/pkg/platform/circuit"
)

// Tracker emits sampled ops events through a bounded queue.
type Tracker struct {
	inbox   chan audit.Event
	sampler *Sampler
	worker  *worker.Worker
	metrics *Metrics
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures the Tracker.
type Option func(*config)

type config struct {
	queueSize int
	sampler   *Sampler
	breaker   *circuit.Breaker
	metrics   *Metrics
	logger    *slog.Logger
}

// WithQueueSize bounds the number of pending events.
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithSampler sets the sampler (default keeps everything).
func WithSampler(s *Sampler) Option {
	return func(c *config) { c.sampler = s }
}

// WithBreaker sets the circuit breaker guarding the store.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *config) { c.breaker = b }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets a logger for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New starts a tracker persisting into store. Call Close to drain.
func New(store audit.Store, opts ...Option) *Tracker {
	cfg := &config{
		queueSize: 1024,
		sampler:   NewSampler(1),
		breaker:   circuit.New("audit-ops", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	t := &Tracker{
		inbox:   make(chan audit.Event, cfg.queueSize),
		sampler: cfg.sampler,
		metrics: cfg.metrics,
		logger:  cfg.logger,
		done:    make(chan struct{}),
	}
	t.worker = worker.NewWorker(store, t.inbox,
		worker.WithBreaker(cfg.breaker),
		worker.WithHooks(worker.Hooks{
			Persisted:   cfg.metrics.IncTracked,
			Failed:      t.onFailure,
			Dropped:     cfg.metrics.IncCircuitBreakerDropped,
			StateChange: cfg.metrics.SetCircuitBreakerState,
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		defer close(t.done)
		_ = t.worker.Run(ctx)
	}()
	return t
}

// Track queues an ops event. It never blocks: sampled-out events and events
// arriving while the queue is full are dropped and counted.
func (t *Tracker) Track(event audit.OpsEvent) {
	if !t.sampler.ShouldSample(event.Action) {
		t.metrics.IncSampled()
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case t.inbox <- event.ToEvent():
	default:
		t.metrics.IncQueueFull()
	}
}

// Close stops accepting work, drains the queue and waits for the worker.
func (t *Tracker) Close() error {
	t.cancel()
	<-t.done
	return nil
}

func (t *Tracker) onFailure(err error) {
	t.metrics.IncPersistFailures()
	if t.logger != nil {
		t.logger.Warn("ops audit persistence failed", "error", err)
	}
}
