package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/openquant/pmccscan/internal/infra"
)

// RegistryConfig tunes the registry's retry and budget behaviour.
type RegistryConfig struct {
	RetryAttempts int           // in-provider retries after the first attempt, default 2
	BackoffBase   time.Duration // exponential backoff base, default 500ms
	CallTimeout   time.Duration // per-call deadline, default 30s
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	} else if c.RetryAttempts == 0 {
		c.RetryAttempts = 2
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// registration bundles one provider with its health and limit state.
type registration struct {
	provider Provider
	enabled  bool
	breaker  *Breaker
	limiter  *infra.Limiter

	// credit budget for this provider across the run; 0 = unlimited
	creditBudget int64

	mu           sync.Mutex
	calls        int64
	credits      int64
	errors       int64
	totalLatency time.Duration
	lastError    string
	lastProbeErr string
}

// ProviderStatus is a point-in-time snapshot of one provider's health.
type ProviderStatus struct {
	ID           string        `json:"id"`
	Enabled      bool          `json:"enabled"`
	Breaker      BreakerState  `json:"breaker"`
	Failures     int           `json:"failures_in_window"`
	Calls        int64         `json:"calls"`
	Credits      int64         `json:"credits"`
	Errors       int64         `json:"errors"`
	AvgLatency   time.Duration `json:"avg_latency"`
	LastError    string        `json:"last_error,omitempty"`
	LastProbeErr string        `json:"last_probe_error,omitempty"`
}

// Registry holds provider handles, their health state and circuit
// breakers, and dispatches each named operation to a healthy provider
// with in-provider retries and one-step fallback.
type Registry struct {
	mu     sync.RWMutex
	regs   map[string]*registration
	routes map[Op][]string // op → ordered provider preference
	cfg    RegistryConfig
	logger log.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, logger log.Logger) *Registry {
	return &Registry{
		regs:   make(map[string]*registration),
		routes: make(map[Op][]string),
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Register adds a provider with its breaker and limiter. creditBudget of
// 0 means unlimited.
func (r *Registry) Register(p Provider, breakerCfg BreakerConfig, limiter *infra.Limiter, creditBudget int64) error {
	if p.ID() == "" {
		return Errorf(KindConfig, "", "", "provider id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.regs[p.ID()]; dup {
		return Errorf(KindConfig, p.ID(), "", "provider %q registered twice", p.ID())
	}
	r.regs[p.ID()] = &registration{
		provider:     p,
		enabled:      true,
		breaker:      NewBreaker(breakerCfg),
		limiter:      limiter,
		creditBudget: creditBudget,
	}
	return nil
}

// SetRoute installs the ordered preference list for an op. Every listed
// provider must be registered and must declare support for the op.
func (r *Registry) SetRoute(op Op, providerIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range providerIDs {
		reg, ok := r.regs[id]
		if !ok {
			return Errorf(KindConfig, id, op, "route references unregistered provider %q", id)
		}
		if !reg.provider.Supports(op) {
			return NewError(KindUnsupportedOp, id, op,
				fmt.Errorf("provider %q does not declare support for %q", id, op))
		}
	}
	r.routes[op] = append([]string(nil), providerIDs...)
	return nil
}

// SetEnabled toggles a provider without unregistering it.
func (r *Registry) SetEnabled(id string, enabled bool) {
	r.mu.RLock()
	reg := r.regs[id]
	r.mu.RUnlock()
	if reg != nil {
		reg.mu.Lock()
		reg.enabled = enabled
		reg.mu.Unlock()
	}
}

// Empty reports whether no providers are registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs) == 0
}

// Execute routes op to the first healthy preferred provider, calling it
// with in-provider retries. On terminal failure it re-dispatches once to
// the next live provider in the preference list. Non-retryable errors
// propagate immediately.
func (r *Registry) Execute(ctx context.Context, op Op, args any) (*Result, error) {
	r.mu.RLock()
	route := append([]string(nil), r.routes[op]...)
	r.mu.RUnlock()

	if len(route) == 0 {
		return nil, Errorf(KindNoProvider, "", op, "no route configured for %q", op)
	}

	var lastErr error
	dispatches := 0
	for _, id := range route {
		reg, err := r.qualify(id, op)
		if err != nil {
			if KindOf(err) == KindUnsupportedOp {
				return nil, err // programming error, never skip
			}
			lastErr = err
			continue
		}

		dispatches++
		res, err := r.callWithRetries(ctx, reg, op, args)
		if err == nil {
			return res, nil
		}
		lastErr = err

		// Non-retryable errors propagate; retryable terminal failures
		// fall through to the next provider, but only one re-dispatch.
		if !IsRetryable(err) && KindOf(err) != KindCircuitOpen {
			return nil, err
		}
		if dispatches >= 2 {
			break
		}
		r.logger.Warn().Str("op", string(op)).Str("provider", id).Err(err).
			Msg("provider failed, trying fallback")
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, Errorf(KindNoProvider, "", op, "no healthy provider for %q", op)
}

// qualify checks one routed provider: declared support, enabled flag and
// breaker state. Limiter admission happens inside the call itself so the
// in-flight slot is held across the request.
func (r *Registry) qualify(id string, op Op) (*registration, error) {
	r.mu.RLock()
	reg, ok := r.regs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, Errorf(KindNoProvider, id, op, "provider %q not registered", id)
	}
	if !reg.provider.Supports(op) {
		return nil, NewError(KindUnsupportedOp, id, op,
			fmt.Errorf("op %q routed to provider %q which does not support it", op, id))
	}
	reg.mu.Lock()
	enabled := reg.enabled
	reg.mu.Unlock()
	if !enabled {
		return nil, Errorf(KindNoProvider, id, op, "provider %q disabled", id)
	}
	if !reg.breaker.Allow() {
		return nil, NewError(KindCircuitOpen, id, op, fmt.Errorf("circuit open for %q", id))
	}
	return reg, nil
}

// callWithRetries runs the retry loop for one provider. The breaker gate
// was already passed for the first attempt; later attempts re-check it.
func (r *Registry) callWithRetries(ctx context.Context, reg *registration, op Op, args any) (*Result, error) {
	id := reg.provider.ID()

	// Budget gate before any outbound call.
	estimate := reg.provider.EstimateCredits(op, args)
	if err := reg.checkBudget(int64(estimate)); err != nil {
		return nil, NewError(KindBudget, id, op, err)
	}

	bo := &backoff.Backoff{
		Min:    r.cfg.BackoffBase,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true, // jitter ≤ 50% of the step
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := bo.Duration()
			if hint := RetryAfterHint(lastErr); hint > 0 {
				delay = hint
			}
			if err := r.sleep(ctx, delay); err != nil {
				return nil, Classify(id, op, err)
			}
			if !reg.breaker.Allow() {
				return nil, NewError(KindCircuitOpen, id, op,
					fmt.Errorf("circuit opened for %q mid-retry", id))
			}
		}

		res, err := r.callOnce(ctx, reg, op, args)
		if err == nil {
			reg.breaker.OnSuccess()
			return res, nil
		}
		lastErr = err
		if BreakerCounted(err) {
			reg.breaker.OnFailure()
		}
		if !IsRetryable(err) {
			return nil, err
		}
		// Daily caps and budgets never recover within a run.
		switch KindOf(err) {
		case KindDailyLimit, KindBudget, KindAuth:
			return nil, err
		}
	}
	return nil, lastErr
}

// callOnce performs a single limiter-gated provider call and records
// usage on every exit path.
func (r *Registry) callOnce(ctx context.Context, reg *registration, op Op, args any) (*Result, error) {
	id := reg.provider.ID()

	callCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	if reg.limiter != nil {
		cost := reg.provider.EstimateCredits(op, args)
		if err := reg.limiter.Acquire(callCtx, cost); err != nil {
			perr := Classify(id, op, err)
			reg.recordFailure(perr)
			return nil, perr
		}
		defer reg.limiter.Release()
	}

	start := time.Now()
	res, err := reg.provider.Call(callCtx, op, args)
	elapsed := time.Since(start)

	if err != nil {
		perr := Classify(id, op, err)
		perr.Op = op
		reg.recordFailure(perr)
		return nil, perr
	}
	if res.Latency == 0 {
		res.Latency = elapsed
	}
	reg.recordSuccess(res)
	return res, nil
}

func (reg *registration) checkBudget(estimate int64) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.creditBudget > 0 && reg.credits+estimate > reg.creditBudget {
		return fmt.Errorf("credit budget %d would be exceeded (used %d, estimate %d)",
			reg.creditBudget, reg.credits, estimate)
	}
	return nil
}

func (reg *registration) recordSuccess(res *Result) {
	reg.mu.Lock()
	reg.calls++
	reg.credits += int64(res.Credits)
	reg.totalLatency += res.Latency
	reg.mu.Unlock()
}

func (reg *registration) recordFailure(err *Error) {
	reg.mu.Lock()
	reg.calls++
	reg.errors++
	reg.lastError = err.Error()
	reg.mu.Unlock()
}

// Status returns a snapshot per provider.
func (r *Registry) Status() map[string]ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ProviderStatus, len(r.regs))
	for id, reg := range r.regs {
		reg.mu.Lock()
		st := ProviderStatus{
			ID:           id,
			Enabled:      reg.enabled,
			Breaker:      reg.breaker.State(),
			Failures:     reg.breaker.Failures(),
			Calls:        reg.calls,
			Credits:      reg.credits,
			Errors:       reg.errors,
			LastError:    reg.lastError,
			LastProbeErr: reg.lastProbeErr,
		}
		if reg.calls > 0 {
			st.AvgLatency = reg.totalLatency / time.Duration(reg.calls)
		}
		reg.mu.Unlock()
		out[id] = st
	}
	return out
}

// HealthCheck probes every registered provider concurrently and records
// the outcome. Probe failures do not trip breakers.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	regs := make(map[string]*registration, len(r.regs))
	for id, reg := range r.regs {
		regs[id] = reg
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]error, len(regs))

	g, gctx := errgroup.WithContext(ctx)
	for id, reg := range regs {
		g.Go(func() error {
			err := reg.provider.HealthProbe(gctx)
			reg.mu.Lock()
			if err != nil {
				reg.lastProbeErr = err.Error()
			} else {
				reg.lastProbeErr = ""
			}
			reg.mu.Unlock()
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
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
