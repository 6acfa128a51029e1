// Package providers builds the provider registry from configuration:
// constructing each enabled adapter with its limiter, registering it
// with its circuit breaker, and installing the per-operation routes.
package providers

import (
	"github.com/phuslu/log"

	"github.com/openquant/pmccscan/internal/config"
	"github.com/openquant/pmccscan/internal/infra"
	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/internal/providers/claude"
	"github.com/openquant/pmccscan/internal/providers/eodhd"
	"github.com/openquant/pmccscan/internal/providers/marketdata"
)

// BuildRegistry creates a registry with every enabled provider wired in
// and the configured op routes installed. Routes that reference a
// disabled provider are trimmed; an op whose whole preference list is
// disabled simply gets no route and fails at dispatch time with
// NoProviderAvailable.
func BuildRegistry(cfg *config.Config, logger log.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry(provider.RegistryConfig{
		RetryAttempts: cfg.Providers.Retry.Attempts,
		BackoffBase:   cfg.Providers.Retry.BackoffBase,
		CallTimeout:   cfg.Providers.Retry.CallTimeout,
	}, logger)

	breakerCfg := provider.BreakerConfig{
		FailureThreshold: cfg.Providers.Breaker.FailureThreshold,
		Window:           cfg.Providers.Breaker.Window,
		Cooldown:         cfg.Providers.Breaker.Cooldown,
	}

	enabled := make(map[string]bool)

	if f := cfg.Providers.EODHD; f.Enabled {
		limiter := infra.NewLimiter(infra.LimiterConfig{
			RequestsPerSecond: f.RequestsPerSecond,
			MaxInFlight:       f.MaxInFlight,
			DailyLimit:        f.DailyLimit,
		})
		p := eodhd.New(f.APIKey, f.BaseURL, limiter)
		if err := reg.Register(p, breakerCfg, limiter, f.CreditBudget); err != nil {
			return nil, err
		}
		enabled[p.ID()] = true
	}

	if o := cfg.Providers.MarketData; o.Enabled {
		limiter := infra.NewLimiter(infra.LimiterConfig{
			RequestsPerSecond: o.RequestsPerSecond,
			MaxInFlight:       o.MaxInFlight,
			DailyLimit:        o.DailyLimit,
		})
		p := marketdata.New(o.APIKey, o.BaseURL, provider.ChainFeed(o.Feed))
		if err := reg.Register(p, breakerCfg, limiter, o.CreditBudget); err != nil {
			return nil, err
		}
		enabled[p.ID()] = true
	}

	if l := cfg.Providers.Claude; l.Enabled && l.APIKey != "" {
		p := claude.New(claude.Config{
			APIKey:      l.APIKey,
			BaseURL:     l.BaseURL,
			Model:       l.Model,
			MaxTokens:   l.MaxTokens,
			Temperature: l.Temperature,
		})
		// LLM calls are paced by the orchestrator's worker pool; a modest
		// limiter guards against route misconfiguration.
		limiter := infra.NewLimiter(infra.LimiterConfig{RequestsPerSecond: 2, MaxInFlight: 10})
		if err := reg.Register(p, breakerCfg, limiter, 0); err != nil {
			return nil, err
		}
		enabled[p.ID()] = true
	}

	for op, prefs := range cfg.Providers.Routes {
		live := make([]string, 0, len(prefs))
		for _, id := range prefs {
			if enabled[id] {
				live = append(live, id)
			}
		}
		if len(live) == 0 {
			logger.Warn().Str("op", op).Msg("no enabled provider for op, route skipped")
			continue
		}
		if err := reg.SetRoute(provider.Op(op), live...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
