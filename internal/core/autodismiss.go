package core

import (
	"context"
	"sync"
	"time"
)

// DefaultAutoDismissDelay is how long an unseen outcome stays visible before
// it is acknowledged automatically.
const DefaultAutoDismissDelay = 6 * time.Second

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// TimerFactory arms a timer that runs fn after d.
type TimerFactory func(d time.Duration, fn func()) Timer

func defaultTimerFactory(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// AutoDismissOption configures an AutoDismisser.
type AutoDismissOption func(*AutoDismisser)

// WithAutoDismissDelay overrides the default delay. Non-positive values are ignored.
func WithAutoDismissDelay(d time.Duration) AutoDismissOption {
	return func(a *AutoDismisser) {
		if d > 0 {
			a.delay = d
		}
	}
}

// WithTimerFactory replaces time.AfterFunc, typically with a manual timer in tests.
func WithTimerFactory(f TimerFactory) AutoDismissOption {
	return func(a *AutoDismisser) {
		if f != nil {
			a.newTimer = f
		}
	}
}

// AutoDismisser acknowledges decided requests after a delay, one timer per
// request. A manual dismissal cancels the pending timer.
type AutoDismisser struct {
	svc      *Service
	ctx      context.Context
	delay    time.Duration
	newTimer TimerFactory

	mu      sync.Mutex
	pending map[string]armedTimer
	armed   uint64
	stopped bool
}

// armedTimer pairs a timer with the arm it belongs to, so a callback from a
// cancelled arm cannot consume a later one for the same key.
type armedTimer struct {
	timer Timer
	arm   uint64
}

// NewAutoDismisser builds a scheduler that dismisses through svc. Fired
// timers run their dismissal with ctx.
func NewAutoDismisser(ctx context.Context, svc *Service, opts ...AutoDismissOption) *AutoDismisser {
	a := &AutoDismisser{
		svc:      svc,
		ctx:      ctx,
		delay:    DefaultAutoDismissDelay,
		newTimer: defaultTimerFactory,
		pending:  make(map[string]armedTimer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func dismissKey(kind OutcomeKind, id string) string {
	return string(kind) + "/" + id
}

// Schedule arms a timer for the request. Scheduling an armed request is a no-op.
func (a *AutoDismisser) Schedule(kind OutcomeKind, id string) {
	key := dismissKey(kind, id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if _, armed := a.pending[key]; armed {
		return
	}
	a.armed++
	arm := a.armed
	a.pending[key] = armedTimer{timer: a.newTimer(a.delay, func() { a.fire(kind, id, arm) }), arm: arm}
}

func (a *AutoDismisser) fire(kind OutcomeKind, id string, arm uint64) {
	key := dismissKey(kind, id)
	a.mu.Lock()
	current, ok := a.pending[key]
	ok = ok && current.arm == arm
	if ok {
		delete(a.pending, key)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	if _, err := a.svc.DismissOutcome(a.ctx, kind, id); err != nil {
		a.svc.opts.logger.Warn("auto dismiss failed", "kind", string(kind), "id", id, "error", err)
	}
}

// Dismiss cancels any pending timer for the request and dismisses it now.
func (a *AutoDismisser) Dismiss(ctx context.Context, kind OutcomeKind, id string) (Result, error) {
	a.cancel(kind, id)
	return a.svc.DismissOutcome(ctx, kind, id)
}

func (a *AutoDismisser) cancel(kind OutcomeKind, id string) {
	key := dismissKey(kind, id)
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[key]; ok {
		p.timer.Stop()
		delete(a.pending, key)
	}
}

// Observe schedules every unacknowledged outcome in feed.
func (a *AutoDismisser) Observe(feed Feed) {
	for n := range feed.All() {
		if n.Source != nil {
			a.Schedule(n.Source.Kind, n.Source.ID)
		}
	}
}

// Pending returns the number of armed timers.
func (a *AutoDismisser) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop cancels every pending timer. Later Schedule calls are ignored.
func (a *AutoDismisser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for key, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, key)
	}
}
