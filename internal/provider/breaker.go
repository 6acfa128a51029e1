package provider

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig sizes one circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // failures within Window that open the breaker, default 5
	Window           time.Duration // rolling failure window, default 60s
	Cooldown         time.Duration // OPEN hold time before HALF_OPEN, default 60s
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	return c
}

// Breaker is a CLOSED → OPEN → HALF_OPEN → CLOSED circuit breaker with a
// rolling failure window and a single half-open probe. Callers gate each
// attempt on Allow and report the outcome with OnSuccess/OnFailure.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures []time.Time
	openedAt time.Time
	probing  bool // a half-open probe is in flight

	now func() time.Time
}

// NewBreaker creates a breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{
		cfg:   cfg.withDefaults(),
		state: BreakerClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. In HALF_OPEN only a single
// probe is admitted; concurrent callers are rejected until it resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// OnSuccess records a successful call. A half-open probe success closes
// the breaker and resets counters.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.failures = nil
		b.probing = false
		return
	}
	// Closed-state success trims the failure window.
	b.prune()
}

// OnFailure records a breaker-counted failure. Closed-state failures
// accumulate in the rolling window; a half-open probe failure reopens
// with a fresh cooldown.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = now
		b.probing = false
	case BreakerClosed:
		b.failures = append(b.failures, now)
		b.prune()
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = now
			b.failures = nil
		}
	}
}

// State returns the breaker's current state, advancing OPEN → HALF_OPEN
// when the cooldown has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Failures returns the count of failures inside the current window.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()
	return len(b.failures)
}

// prune drops failures older than the rolling window. Must hold mu.
func (b *Breaker) prune() {
	cutoff := b.now().Add(-b.cfg.Window)
	i := 0
	for i < len(b.failures) && b.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = b.failures[i:]
	}
}
