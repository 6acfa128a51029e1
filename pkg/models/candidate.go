package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvariant is the base error for PMCC construction failures. Wrap
// sites add the specific violated condition.
var ErrInvariant = errors.New("pmcc invariant violated")

// ContractMultiplier is the per-contract share count for standard US
// equity options.
var ContractMultiplier = decimal.NewFromInt(100)

// StrategyGreeks holds the net greeks of the two-leg position: long leg
// greeks minus short leg greeks.
type StrategyGreeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
}

// PMCCCandidate is a validated long-LEAPS / short-call pair with its
// strategy economics. Construct only through NewPMCCCandidate, which
// enforces every structural invariant.
type PMCCCandidate struct {
	Symbol           string          `json:"symbol"`
	UnderlyingPrice  decimal.Decimal `json:"underlying_price"`
	LongLeaps        OptionContract  `json:"long_leaps"`
	ShortCall        OptionContract  `json:"short_call"`
	NetDebit         decimal.Decimal `json:"net_debit"`
	CreditReceived   decimal.Decimal `json:"credit_received"`
	MaxProfit        decimal.Decimal `json:"max_profit"`
	MaxLoss          decimal.Decimal `json:"max_loss"`
	BreakevenPrice   decimal.Decimal `json:"breakeven_price"`
	RiskRewardRatio  decimal.Decimal `json:"risk_reward_ratio"`
	StrategyGreeks   StrategyGreeks  `json:"strategy_greeks"`
	LiquidityScore   decimal.Decimal `json:"liquidity_score"`
	TraditionalScore decimal.Decimal `json:"traditional_score"`
	Warnings         []string        `json:"warnings,omitempty"`
	Chain            *OptionChain    `json:"chain,omitempty"` // retained only when requested
	AnalyzedAt       time.Time       `json:"analyzed_at"`
}

// NewPMCCCandidate validates the pair and computes its economics.
// Pricing convention: buy the long at the ask, sell the short at the bid.
func NewPMCCCandidate(symbol string, underlyingPrice decimal.Decimal, long, short OptionContract, analyzedAt time.Time) (*PMCCCandidate, error) {
	if long.Side != Call || short.Side != Call {
		return nil, fmt.Errorf("%w: both legs must be calls", ErrInvariant)
	}
	if long.Strike.GreaterThan(underlyingPrice) {
		return nil, fmt.Errorf("%w: long strike %s above underlying %s", ErrInvariant, long.Strike, underlyingPrice)
	}
	if !short.Strike.GreaterThan(long.Strike) {
		return nil, fmt.Errorf("%w: short strike %s not above long strike %s", ErrInvariant, short.Strike, long.Strike)
	}
	if !long.Expiration.After(short.Expiration) {
		return nil, fmt.Errorf("%w: long expiration %s not after short expiration %s",
			ErrInvariant, long.Expiration.Format("2006-01-02"), short.Expiration.Format("2006-01-02"))
	}
	if long.Ask == nil || short.Bid == nil {
		return nil, fmt.Errorf("%w: missing long ask or short bid", ErrInvariant)
	}

	netDebit := long.Ask.Sub(*short.Bid)
	if !netDebit.IsPositive() {
		return nil, fmt.Errorf("%w: net debit %s not positive", ErrInvariant, netDebit)
	}
	// Profitability guard: the spread width must exceed the debit paid.
	if !short.Strike.GreaterThan(long.Strike.Add(netDebit)) {
		return nil, fmt.Errorf("%w: short strike %s inside breakeven %s",
			ErrInvariant, short.Strike, long.Strike.Add(netDebit))
	}

	maxLoss := netDebit.Mul(ContractMultiplier)
	maxProfit := short.Strike.Sub(long.Strike).Sub(netDebit).Mul(ContractMultiplier)

	c := &PMCCCandidate{
		Symbol:          symbol,
		UnderlyingPrice: underlyingPrice,
		LongLeaps:       long,
		ShortCall:       short,
		NetDebit:        netDebit,
		CreditReceived:  *short.Bid,
		MaxProfit:       maxProfit,
		MaxLoss:         maxLoss,
		BreakevenPrice:  long.Strike.Add(netDebit),
		RiskRewardRatio: maxProfit.Div(maxLoss),
		StrategyGreeks:  netGreeks(&long, &short),
		AnalyzedAt:      analyzedAt,
	}
	return c, nil
}

// OpenInterestSum returns the combined open interest of both legs, used
// as a tie-break when scores are equal.
func (c *PMCCCandidate) OpenInterestSum() int64 {
	return c.LongLeaps.OpenInterest + c.ShortCall.OpenInterest
}

// AddWarning appends a warning flag (e.g. early-assignment risk) without
// affecting the candidate's validity.
func (c *PMCCCandidate) AddWarning(w string) {
	c.Warnings = append(c.Warnings, w)
}

func netGreeks(long, short *OptionContract) StrategyGreeks {
	g := StrategyGreeks{}
	g.Delta = deref(long.Delta).Sub(deref(short.Delta))
	g.Gamma = deref(long.Gamma).Sub(deref(short.Gamma))
	g.Theta = deref(long.Theta).Sub(deref(short.Theta))
	g.Vega = deref(long.Vega).Sub(deref(short.Vega))
	return g
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
