// Package breaker provides a three-state circuit breaker used to wrap every
// paid external dependency (transcription, LLM, each fingerprint provider).
// Each dependency gets its own instance so one provider's outage does not
// starve the others.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected because the breaker is open (or
// a half-open trial is already in flight). Callers absorb it with a
// component-specific fallback; it is never surfaced raw to the API caller.
var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is safe for concurrent use by requests sharing one instance.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	logger    *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trialBusy   bool // a half-open trial call is in flight
	now         func() time.Time

	onStateChange func(name string, state State)
}

// SetStateChangeHook registers a callback fired on every state transition,
// outside the breaker's lock. Used to emit degradation signals.
func (b *Breaker) SetStateChangeHook(fn func(name string, state State)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

func New(name string, threshold int, cooldown time.Duration, logger *slog.Logger) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Do runs op under the breaker's state machine. While open and before the
// cooldown elapses, op is not invoked at all. After the cooldown exactly one
// call is let through as the half-open trial; its success closes the breaker,
// its failure re-opens it and resets the cooldown timer.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.trialBusy = true
		b.logger.Info("breaker half-open, allowing trial call", "breaker", b.name)
		b.notifyLocked(HalfOpen)
		return nil
	case HalfOpen:
		if b.trialBusy {
			b.mu.Unlock()
			return ErrOpen
		}
		b.trialBusy = true
		b.mu.Unlock()
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()

	if b.state == HalfOpen {
		b.trialBusy = false
	}

	if err == nil {
		wasDegraded := b.state != Closed
		if b.state == HalfOpen || b.failures > 0 {
			b.logger.Info("breaker reset", "breaker", b.name, "state", b.state.String())
		}
		b.state = Closed
		b.failures = 0
		if wasDegraded {
			b.notifyLocked(Closed)
			return
		}
		b.mu.Unlock()
		return
	}

	b.failures++
	b.lastFailure = b.now()

	if b.state == HalfOpen {
		b.state = Open
		b.logger.Warn("breaker re-opened after failed trial", "breaker", b.name, "error", err)
		b.notifyLocked(Open)
		return
	}

	if b.state == Closed && b.failures >= b.threshold {
		b.state = Open
		b.logger.Warn("breaker opened",
			"breaker", b.name,
			"failures", b.failures,
			"cooldown", b.cooldown,
			"error", err,
		)
		b.notifyLocked(Open)
		return
	}
	b.mu.Unlock()
}

// notifyLocked releases the lock and fires the state-change hook. The caller
// must hold the lock and return immediately after.
func (b *Breaker) notifyLocked(state State) {
	hook := b.onStateChange
	b.mu.Unlock()
	if hook != nil {
		hook(b.name, state)
	}
}

// State reports the last observed state. An elapsed cooldown is only acted
// on by the next call, so an idle open breaker reports Open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs a value-returning operation under the breaker.
func Execute[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
