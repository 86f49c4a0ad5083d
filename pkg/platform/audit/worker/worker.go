package worker

import (
	"context"

	audit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/circuit"
)

// Hooks observe worker outcomes (metrics, logging). Nil hooks are skipped.
type Hooks struct {
	Persisted   func()
	Failed      func(err error)
	Dropped     func()
	StateChange func(open bool)
}

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	breaker *circuit.Breaker
	hooks   Hooks
}

// Option configures a Worker.
type Option func(*Worker)

// WithBreaker drops events instead of calling the store while the breaker is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(w *Worker) { w.breaker = b }
}

// WithHooks installs outcome hooks.
func WithHooks(h Hooks) Option {
	return func(w *Worker) { w.hooks = h }
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run persists events until ctx is cancelled, then drains what is already
// queued and returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.persist(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, event audit.Event) {
	if w.breaker != nil && !w.breaker.Allow() {
		call(w.hooks.Dropped)
		return
	}

	if err := w.store.Append(ctx, event); err != nil {
		if w.hooks.Failed != nil {
			w.hooks.Failed(err)
		}
		if w.breaker != nil {
			if _, change := w.breaker.RecordFailure(); change.Opened && w.hooks.StateChange != nil {
				w.hooks.StateChange(true)
			}
		}
		return
	}

	call(w.hooks.Persisted)
	if w.breaker != nil {
		if _, change := w.breaker.RecordSuccess(); change.Closed && w.hooks.StateChange != nil {
			w.hooks.StateChange(false)
		}
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
