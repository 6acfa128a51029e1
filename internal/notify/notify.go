// Package notify delivers scan results over the configured channels:
// short-form chat first, long-form email as the companion or fallback.
// Each channel sits behind its own circuit breaker with in-channel
// retries for transient vendor errors.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
	"github.com/phuslu/log"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

// Mode selects the delivery policy across channels.
type Mode string

const (
	ModePrimaryOnly         Mode = "primary_only"
	ModeBoth                Mode = "both"
	ModePrimaryWithFallback Mode = "primary_with_fallback"
)

// ErrNonRetryable marks vendor rejections that must not be retried
// (bad recipient, policy refusal, auth).
var ErrNonRetryable = errors.New("non-retryable delivery error")

// Channel is one delivery target. Send delivers a formatted rendering
// of the results; implementations classify permanent rejections by
// wrapping ErrNonRetryable.
type Channel interface {
	Name() string
	Send(ctx context.Context, results *models.ScanResults) error
}

// maxSendAttempts bounds in-channel retries for transient errors.
const maxSendAttempts = 3

// DeliveryResult records one channel's outcome.
type DeliveryResult struct {
	Channel   string
	Delivered bool
	Attempts  int
	Err       error
}

// Outcome is the fan-out summary. Success means at least one enabled
// channel acknowledged delivery.
type Outcome struct {
	Success bool
	Results []DeliveryResult
}

// managed pairs a channel with its breaker.
type managed struct {
	channel Channel
	breaker *provider.Breaker
}

// Manager owns the channels and the cross-channel policy.
type Manager struct {
	primary       *managed
	secondary     *managed
	mode          Mode
	fallbackDelay time.Duration
	logger        log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Config assembles a Manager.
type Config struct {
	Primary          Channel // nil = not configured
	Secondary        Channel
	PrimaryBreaker   provider.BreakerConfig
	SecondaryBreaker provider.BreakerConfig
	Mode             Mode
	FallbackDelay    time.Duration
}

// NewManager creates a Manager. Either channel may be nil.
func NewManager(cfg Config, logger log.Logger) *Manager {
	m := &Manager{
		mode:          cfg.Mode,
		fallbackDelay: cfg.FallbackDelay,
		logger:        logger,
		sleep:         sleepCtx,
	}
	if m.mode == "" {
		m.mode = ModePrimaryWithFallback
	}
	if cfg.Primary != nil {
		m.primary = &managed{channel: cfg.Primary, breaker: provider.NewBreaker(cfg.PrimaryBreaker)}
	}
	if cfg.Secondary != nil {
		m.secondary = &managed{channel: cfg.Secondary, breaker: provider.NewBreaker(cfg.SecondaryBreaker)}
	}
	return m
}

// Deliver fans the results out per the configured mode.
func (m *Manager) Deliver(ctx context.Context, results *models.ScanResults) *Outcome {
	out := &Outcome{}

	if m.primary == nil && m.secondary == nil {
		return out
	}

	var primaryOK bool
	if m.primary != nil {
		r := m.send(ctx, m.primary, results)
		out.Results = append(out.Results, r)
		primaryOK = r.Delivered
	}

	switch m.mode {
	case ModePrimaryOnly:
		// Secondary never attempted.
	case ModeBoth:
		if m.secondary != nil {
			r := m.send(ctx, m.secondary, results)
			out.Results = append(out.Results, r)
		}
	case ModePrimaryWithFallback:
		if !primaryOK && m.secondary != nil {
			if m.fallbackDelay > 0 {
				if err := m.sleep(ctx, m.fallbackDelay); err != nil {
					out.Success = primaryOK
					return out
				}
			}
			r := m.send(ctx, m.secondary, results)
			out.Results = append(out.Results, r)
		}
	}

	for _, r := range out.Results {
		if r.Delivered {
			out.Success = true
		}
	}
	return out
}

// send runs one channel's breaker-gated retry loop.
func (m *Manager) send(ctx context.Context, ch *managed, results *models.ScanResults) DeliveryResult {
	name := ch.channel.Name()
	res := DeliveryResult{Channel: name}

	if !ch.breaker.Allow() {
		res.Err = provider.NewError(provider.KindCircuitOpen, name, "", errors.New("channel breaker open"))
		m.logger.Warn().Str("channel", name).Msg("channel circuit open, skipping")
		return res
	}

	bo := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
	var err error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			if serr := m.sleep(ctx, bo.Duration()); serr != nil {
				break
			}
			if !ch.breaker.Allow() {
				err = provider.NewError(provider.KindCircuitOpen, name, "", errors.New("channel breaker opened mid-retry"))
				break
			}
		}

		err = ch.channel.Send(ctx, results)
		if err == nil {
			ch.breaker.OnSuccess()
			res.Delivered = true
			return res
		}
		ch.breaker.OnFailure()
		if errors.Is(err, ErrNonRetryable) || ctx.Err() != nil {
			break
		}
		m.logger.Warn().Str("channel", name).Int("attempt", attempt).Err(err).
			Msg("delivery attempt failed")
	}
	res.Err = err
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
