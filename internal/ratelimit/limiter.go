package ratelimit

import (
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// Retry hint when the concurrency cap is hit; in-flight requests finish
	// quickly compared to window resets.
	concurrencyRetryAfter = 5 * time.Second
)

// Limits configures per-caller admission caps.
type Limits struct {
	PerMinute  int
	PerHour    int
	Concurrent int
}

// Denied describes a rejected admission. Denial is an expected outcome with a
// retry hint, not an error.
type Denied struct {
	RetryAfter time.Duration
	Reason     string
}

// callerWindow tracks one caller's admitted timestamps and in-flight count.
// Timestamps older than the hour window are purged lazily on the next admit.
type callerWindow struct {
	stamps   []time.Time
	inFlight int
}

// Limiter is a sliding-window plus concurrency admission controller, safe for
// use from concurrent requests. One instance is shared process-wide and passed
// to the orchestrator by reference.
type Limiter struct {
	mu      sync.Mutex
	limits  Limits
	windows map[string]*callerWindow
	now     func() time.Time
}

func New(limits Limits) *Limiter {
	return &Limiter{
		limits:  limits,
		windows: make(map[string]*callerWindow),
		now:     time.Now,
	}
}

// Admit decides whether a request from callerID may proceed. On acceptance it
// returns an Admission that must be released exactly once on every exit path;
// on rejection it returns the denial with a retry hint.
func (l *Limiter) Admit(callerID string) (*Admission, *Denied) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[callerID]
	if w == nil {
		w = &callerWindow{}
		l.windows[callerID] = w
	}

	// Purge timestamps that fell out of the hour window.
	cutoff := now.Add(-hourWindow)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if w.inFlight >= l.limits.Concurrent {
		return nil, &Denied{RetryAfter: concurrencyRetryAfter, Reason: "too many concurrent requests"}
	}

	minuteCount, oldestInMinute := countSince(w.stamps, now.Add(-minuteWindow))
	if minuteCount >= l.limits.PerMinute {
		return nil, &Denied{
			RetryAfter: retryAfter(oldestInMinute, minuteWindow, now),
			Reason:     "per-minute limit exceeded",
		}
	}

	if len(w.stamps) >= l.limits.PerHour {
		return nil, &Denied{
			RetryAfter: retryAfter(w.stamps[0], hourWindow, now),
			Reason:     "per-hour limit exceeded",
		}
	}

	w.stamps = append(w.stamps, now)
	w.inFlight++
	return &Admission{limiter: l, callerID: callerID}, nil
}

func (l *Limiter) release(callerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.windows[callerID]; w != nil && w.inFlight > 0 {
		w.inFlight--
	}
}

// InFlight reports the current concurrency count for a caller.
func (l *Limiter) InFlight(callerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.windows[callerID]; w != nil {
		return w.inFlight
	}
	return 0
}

// countSince returns how many stamps fall after cutoff and the oldest of them.
func countSince(stamps []time.Time, cutoff time.Time) (int, time.Time) {
	count := 0
	var oldest time.Time
	for _, ts := range stamps {
		if ts.After(cutoff) {
			if count == 0 {
				oldest = ts
			}
			count++
		}
	}
	return count, oldest
}

// retryAfter computes when the oldest timestamp in the violated window expires.
func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d
}

// Admission is the scoped resource handle for one admitted request. Release is
// idempotent so double-release on overlapping exit paths cannot underflow the
// concurrency counter.
type Admission struct {
	limiter  *Limiter
	callerID string
	once     sync.Once
}

func (a *Admission) Release() {
	a.once.Do(func() {
		a.limiter.release(a.callerID)
	})
}
