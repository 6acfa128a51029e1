// Package analyzer does the per-symbol work of a scan: fetch the call
// chain, pair LEAPS with short calls under the PMCC constraints, and
// rank the surviving candidates.
package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/internal/scoring"
	"github.com/openquant/pmccscan/pkg/models"
)

// WarningEarlyAssignment flags a short leg whose extrinsic value is
// below an expected dividend paid during its life.
const WarningEarlyAssignment = "EarlyAssignmentRisk"

// WarningNoChain records chain absence for a symbol; absence is a
// warning, not an error.
const WarningNoChain = "NoChain"

// Options configures the analyzer.
type Options struct {
	LEAPS            models.LegCriteria
	ShortCall        models.LegCriteria
	MaxCandidates    int             // per symbol, default 3
	MinScore         decimal.Decimal // composite cut-off; zero disables
	AllowNonStandard bool
	RetainChain      bool // keep the chain on the result for audit
}

// Result is the per-symbol output.
type Result struct {
	Symbol              string
	Candidates          []*models.PMCCCandidate
	Chain               *models.OptionChain // only when Options.RetainChain
	Warnings            []string
	InvariantViolations int
}

// Analyzer pairs option legs for one symbol at a time. It is stateless
// across symbols and safe for concurrent use.
type Analyzer struct {
	registry provider.Executor
	scorer   *scoring.Calculator
	opts     Options
	logger   log.Logger

	now func() time.Time
}

// New creates an Analyzer.
func New(registry provider.Executor, scorer *scoring.Calculator, opts Options, logger log.Logger) *Analyzer {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 3
	}
	return &Analyzer{
		registry: registry,
		scorer:   scorer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Analyze fetches the chain for one symbol and enumerates PMCC pairs.
// Provider errors propagate; an empty or missing chain is a NoChain
// warning with zero candidates.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, quote models.Quote) (*Result, error) {
	res := &Result{Symbol: symbol}

	underlying, ok := quote.Price()
	if !ok {
		res.Warnings = append(res.Warnings, WarningNoChain)
		return res, nil
	}

	chain, err := a.fetchChain(ctx, symbol)
	if err != nil {
		if provider.KindOf(err) == provider.KindNoData {
			res.Warnings = append(res.Warnings, WarningNoChain)
			return res, nil
		}
		return nil, err
	}
	if chain == nil || len(chain.Contracts) == 0 {
		res.Warnings = append(res.Warnings, WarningNoChain)
		return res, nil
	}
	if chain.UnderlyingPrice.IsPositive() {
		underlying = chain.UnderlyingPrice
	}

	leaps, shorts, mislabelled := a.partition(chain, underlying)
	res.InvariantViolations += mislabelled
	if len(leaps) == 0 || len(shorts) == 0 {
		a.logger.Debug().Str("symbol", symbol).
			Int("leaps", len(leaps)).Int("shorts", len(shorts)).
			Msg("no pairable legs after filtering")
		if a.opts.RetainChain {
			res.Chain = chain
		}
		return res, nil
	}

	analyzedAt := a.now().UTC()
	candidates := make([]*models.PMCCCandidate, 0, a.opts.MaxCandidates)
	for i := range leaps {
		for j := range shorts {
			long, short := leaps[i], shorts[j]

			// Cheap guards before construction; NewPMCCCandidate
			// re-verifies all of them.
			if long.Ask == nil || short.Bid == nil {
				continue
			}
			netDebit := long.Ask.Sub(*short.Bid)
			if !netDebit.IsPositive() {
				continue
			}
			if !short.Strike.GreaterThan(long.Strike.Add(netDebit)) {
				continue
			}
			if !long.Expiration.After(short.Expiration) {
				continue
			}

			c, err := models.NewPMCCCandidate(symbol, underlying, long, short, analyzedAt)
			if err != nil {
				res.InvariantViolations++
				continue
			}
			score := a.scorer.Score(c, nil)
			if a.opts.MinScore.IsPositive() && score.LessThan(a.opts.MinScore) {
				continue
			}
			candidates = append(candidates, c)
		}
	}

	sortCandidates(candidates)
	if len(candidates) > a.opts.MaxCandidates {
		candidates = candidates[:a.opts.MaxCandidates]
	}
	res.Candidates = candidates
	if a.opts.RetainChain {
		res.Chain = chain
	}
	return res, nil
}

// fetchChain retrieves the call chain spanning both legs' DTE windows.
func (a *Analyzer) fetchChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	minDelta := a.opts.ShortCall.MinDelta
	maxDelta := a.opts.LEAPS.MaxDelta

	res, err := a.registry.Execute(ctx, provider.OpGetOptionChain, provider.ChainArgs{
		Underlying:    symbol,
		Side:          models.Call,
		MinDTE:        a.opts.ShortCall.MinDTE,
		MaxDTE:        a.opts.LEAPS.MaxDTE,
		MinDelta:      &minDelta,
		MaxDelta:      &maxDelta,
		IncludeGreeks: true,
	})
	if err != nil {
		return nil, err
	}
	chain, ok := res.Data.(*models.OptionChain)
	if !ok {
		return nil, provider.Errorf(provider.KindParse, "", provider.OpGetOptionChain,
			"unexpected chain result type %T", res.Data)
	}
	return chain, nil
}

// partition splits the chain into LEAPS and short-call pools: ITM calls
// inside the long criteria and OTM calls inside the short criteria, each
// pool independently liquidity-filtered. A contract carrying a deep-ITM
// delta but an OTM strike is adversarial data; it is dropped and counted
// as an invariant violation.
func (a *Analyzer) partition(chain *models.OptionChain, underlying decimal.Decimal) (leaps, shorts []models.OptionContract, mislabelled int) {
	asOf := a.now()
	for _, c := range chain.Calls() {
		if !c.Valid(asOf) {
			continue
		}
		if c.NonStandard && !a.opts.AllowNonStandard {
			continue
		}
		switch {
		case a.opts.LEAPS.Matches(&c):
			if c.Strike.GreaterThan(underlying) {
				mislabelled++
				continue
			}
			if passesLiquidity(&c, &a.opts.LEAPS) {
				leaps = append(leaps, c)
			}
		case a.opts.ShortCall.Matches(&c) && c.Strike.GreaterThan(underlying):
			if passesLiquidity(&c, &a.opts.ShortCall) {
				shorts = append(shorts, c)
			}
		}
	}
	return leaps, shorts, mislabelled
}

// passesLiquidity applies the leg's open interest and spread filters:
// oi ≥ min, bid > 0, ask > bid, spread/mid ≤ max.
func passesLiquidity(c *models.OptionContract, lc *models.LegCriteria) bool {
	if c.OpenInterest < lc.MinOpenInterest {
		return false
	}
	if c.Bid == nil || !c.Bid.IsPositive() {
		return false
	}
	if c.Ask == nil || !c.Ask.GreaterThan(*c.Bid) {
		return false
	}
	if lc.MaxBidAskSpreadPct.IsPositive() {
		pct, ok := c.SpreadPct()
		if !ok || pct.GreaterThan(lc.MaxBidAskSpreadPct) {
			return false
		}
	}
	return true
}

// sortCandidates orders by traditional score descending, breaking ties
// by risk/reward ratio, then combined open interest, then the earlier
// short expiration.
func sortCandidates(cs []*models.PMCCCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if !a.TraditionalScore.Equal(b.TraditionalScore) {
			return a.TraditionalScore.GreaterThan(b.TraditionalScore)
		}
		if !a.RiskRewardRatio.Equal(b.RiskRewardRatio) {
			return a.RiskRewardRatio.GreaterThan(b.RiskRewardRatio)
		}
		if a.OpenInterestSum() != b.OpenInterestSum() {
			return a.OpenInterestSum() > b.OpenInterestSum()
		}
		return a.ShortCall.Expiration.Before(b.ShortCall.Expiration)
	})
}

// FlagEarlyAssignment adds the EarlyAssignmentRisk warning when the
// underlying goes ex-dividend inside the short leg's life and the short
// leg's extrinsic value is below the expected dividend. The candidate is
// flagged, never excluded.
func FlagEarlyAssignment(c *models.PMCCCandidate, events *models.CalendarEvents) {
	if events == nil || events.ExDividendDate == nil || events.DividendAmount == nil {
		return
	}
	exDiv := *events.ExDividendDate
	if exDiv.After(c.ShortCall.Expiration) || exDiv.Before(c.AnalyzedAt.AddDate(0, 0, -1)) {
		return
	}
	extrinsic := c.ShortCall.Extrinsic(c.UnderlyingPrice)
	if extrinsic.LessThan(*events.DividendAmount) {
		for _, w := range c.Warnings {
			if w == WarningEarlyAssignment {
				return
			}
		}
		c.AddWarning(WarningEarlyAssignment)
	}
}
