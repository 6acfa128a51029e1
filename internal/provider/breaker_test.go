package provider

import (
	"testing"
	"time"
)

// fakeClock lets tests advance breaker time deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{
		FailureThreshold: threshold,
		Window:           time.Minute,
		Cooldown:         cooldown,
	})
	b.now = clk.now
	return b, clk
}

func TestBreakerOpensAtExactThreshold(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.OnFailure()
		if got := b.State(); got != BreakerClosed {
			t.Fatalf("after %d failures state = %s, want CLOSED", i+1, got)
		}
	}

	// The 5th failure, not the 4th or 6th, opens the breaker.
	b.OnFailure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("after 5 failures state = %s, want OPEN", got)
	}
	if b.Allow() {
		t.Fatal("open breaker allowed a call")
	}
}

func TestBreakerZeroCallsWhileOpen(t *testing.T) {
	b, clk := newTestBreaker(1, time.Minute)
	b.OnFailure()

	for i := 0; i < 10; i++ {
		clk.advance(5 * time.Second)
		if b.Allow() {
			t.Fatalf("breaker allowed a call %s into the cooldown", time.Duration(i+1)*5*time.Second)
		}
	}
}

func TestBreakerHalfOpenProbeSuccess(t *testing.T) {
	b, clk := newTestBreaker(1, time.Minute)
	b.OnFailure()

	clk.advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("breaker did not admit the half-open probe after cooldown")
	}
	// A second concurrent caller is rejected while the probe is in flight.
	if b.Allow() {
		t.Fatal("breaker admitted a second caller during the half-open probe")
	}

	b.OnSuccess()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state after probe success = %s, want CLOSED", got)
	}
	if !b.Allow() {
		t.Fatal("closed breaker rejected a call")
	}
}

func TestBreakerHalfOpenProbeFailureRestartsCooldown(t *testing.T) {
	b, clk := newTestBreaker(1, time.Minute)
	b.OnFailure()

	clk.advance(61 * time.Second)
	if !b.Allow() {
		t.Fatal("probe not admitted")
	}
	b.OnFailure()

	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state after probe failure = %s, want OPEN", got)
	}
	// Cooldown restarted: still rejecting just before it elapses again.
	clk.advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("breaker allowed a call before the restarted cooldown elapsed")
	}
	clk.advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("breaker did not admit a probe after the restarted cooldown")
	}
}

func TestBreakerRollingWindowForgetsOldFailures(t *testing.T) {
	b, clk := newTestBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	clk.advance(2 * time.Minute) // both fall out of the window

	b.OnFailure()
	b.OnFailure()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED: stale failures should not count", got)
	}
	b.OnFailure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s, want OPEN after 3 failures inside the window", got)
	}
}
