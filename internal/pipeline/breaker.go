package pipeline

import (
	"sync"
	"time"
)

// BreakerState is the dispatch state of the pipeline.
type BreakerState int

const (
	// BreakerClosed dispatches normally.
	BreakerClosed BreakerState = iota

	// BreakerOpen pauses dispatch after repeated failures so a struggling store is not hammered.
	BreakerOpen

	// BreakerHalfOpen lets one poll through to test recovery.
	BreakerHalfOpen
)

// String returns a human-readable name for the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures when dispatch pauses.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed events before dispatch pauses.
	// Zero disables the breaker.
	MaxFailures int

	// Cooldown is how long dispatch stays paused before a trial poll.
	Cooldown time.Duration
}

// breaker pauses polling while events keep failing.
//
// State transitions:
//   - Closed → Open: after MaxFailures consecutive failures
//   - Open → HalfOpen: when Cooldown has passed
//   - HalfOpen → Closed: on the next success
//   - HalfOpen → Open: on the next failure
type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	cfg         BreakerConfig

	onStateChange func(from, to BreakerState)
	now           func() time.Time
}

func newBreaker(cfg BreakerConfig, now func() time.Time, onStateChange func(from, to BreakerState)) *breaker {
	return &breaker{
		cfg:           cfg,
		now:           now,
		onStateChange: onStateChange,
	}
}

// allow reports whether a poll may run.
func (b *breaker) allow() bool {
	if b.cfg.MaxFailures <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.Cooldown {
			return false
		}

		b.transitionTo(BreakerHalfOpen)

		return true
	default:
		return true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.transitionTo(BreakerClosed)
	}
}

func (b *breaker) failure() {
	if b.cfg.MaxFailures <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transitionTo(BreakerOpen)
	}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// transitionTo must be called with the lock held.
func (b *breaker) transitionTo(next BreakerState) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next
	b.failures = 0

	if b.onStateChange != nil {
		b.onStateChange(prev, next)
	}
}
