package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/openquant/pmccscan/pkg/utils"
)

// Limiter errors. The provider layer maps these onto its taxonomy.
var (
	ErrRateLimited        = errors.New("rate limited: deadline expired before capacity")
	ErrDailyLimitExceeded = errors.New("daily request limit exceeded")
)

// LimiterConfig sizes one provider's limiter.
type LimiterConfig struct {
	RequestsPerSecond float64 // token refill rate
	Burst             int     // bucket depth
	MaxInFlight       int64   // concurrent request cap, default 50
	DailyLimit        int64   // 0 = unlimited
	ResetHour         int     // daily bucket reset, market-open wall clock
	ResetMinute       int
}

// Limiter combines a token bucket, an in-flight semaphore and a daily
// cap that refills at the market-open wall clock. One Limiter per
// provider; all methods are safe for concurrent use.
type Limiter struct {
	bucket *rate.Limiter
	sem    *semaphore.Weighted

	mu         sync.Mutex
	dailyLimit int64
	dailyUsed  int64
	resetAt    time.Time
	resetHour  int
	resetMin   int

	// now is swapped in tests.
	now func() time.Time
}

// NewLimiter creates a limiter from config. Zero-valued fields get
// defaults: 10 rps, burst = rps, 50 in flight, reset 09:30 ET.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 50
	}
	if cfg.ResetHour == 0 && cfg.ResetMinute == 0 {
		cfg.ResetHour, cfg.ResetMinute = 9, 30
	}
	l := &Limiter{
		bucket:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		dailyLimit: cfg.DailyLimit,
		resetHour:  cfg.ResetHour,
		resetMin:   cfg.ResetMinute,
		now:        time.Now,
	}
	l.resetAt = l.nextReset(l.now())
	return l
}

// Acquire reserves cost tokens, one daily-cap unit per token, and one
// in-flight slot, blocking until capacity or ctx deadline. The caller
// MUST call Release exactly once after the request completes. On
// deadline expiry no reservation is held and ErrRateLimited is returned;
// when the daily cap is exhausted ErrDailyLimitExceeded is returned
// until the next reset.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	if cost < 1 {
		cost = 1
	}
	if err := l.consumeDaily(int64(cost)); err != nil {
		return err
	}
	if err := l.bucket.WaitN(ctx, cost); err != nil {
		l.refundDaily(int64(cost))
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Deadline expiry, or a wait that cannot fit the deadline.
		return ErrRateLimited
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		// Tokens are spent; only the daily unit is refundable.
		l.refundDaily(int64(cost))
		if errors.Is(err, context.Canceled) {
			return err
		}
		return ErrRateLimited
	}
	return nil
}

// Release frees the in-flight slot taken by Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// SyncRemaining reconciles the daily bucket against a remaining-quota
// header reported by the upstream. Only ever shrinks local headroom.
func (l *Limiter) SyncRemaining(remaining int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dailyLimit <= 0 {
		return
	}
	used := l.dailyLimit - remaining
	if used > l.dailyUsed {
		l.dailyUsed = used
	}
}

// DailyRemaining returns the unused daily quota, or -1 when unlimited.
func (l *Limiter) DailyRemaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dailyLimit <= 0 {
		return -1
	}
	l.maybeReset()
	return l.dailyLimit - l.dailyUsed
}

func (l *Limiter) consumeDaily(n int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dailyLimit <= 0 {
		return nil
	}
	l.maybeReset()
	if l.dailyUsed+n > l.dailyLimit {
		return ErrDailyLimitExceeded
	}
	l.dailyUsed += n
	return nil
}

func (l *Limiter) refundDaily(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dailyLimit <= 0 {
		return
	}
	l.dailyUsed -= n
	if l.dailyUsed < 0 {
		l.dailyUsed = 0
	}
}

// maybeReset rolls the daily bucket forward. Must hold mu.
func (l *Limiter) maybeReset() {
	now := l.now()
	if now.Before(l.resetAt) {
		return
	}
	l.dailyUsed = 0
	l.resetAt = l.nextReset(now)
}

// nextReset returns the next market-open wall clock strictly after now.
func (l *Limiter) nextReset(now time.Time) time.Time {
	et := now.In(utils.Eastern)
	reset := time.Date(et.Year(), et.Month(), et.Day(), l.resetHour, l.resetMin, 0, 0, utils.Eastern)
	if !reset.After(et) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset
}
