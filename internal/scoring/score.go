// Package scoring computes the deterministic 0–100 composite score and
// the per-leg liquidity score for PMCC candidates. Every sub-score is
// monotonic in its obvious driver: a higher risk/reward ratio never
// lowers profitability, tighter spreads never lower liquidity.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// Config tunes the composite score curves and weights.
type Config struct {
	ProfitabilityWeight decimal.Decimal
	RiskWeight          decimal.Decimal
	LiquidityWeight     decimal.Decimal
	TechnicalWeight     decimal.Decimal
	MinTotalScore       decimal.Decimal
	RRSaturation        decimal.Decimal // risk/reward where profitability saturates
	SpreadPctCeiling    decimal.Decimal // spread fraction scoring zero
	OpenInterestCeiling int64           // OI scoring 100
	VolumeCeiling       int64           // daily volume scoring 100
}

// DefaultConfig returns the standard 40/30/20/10 weighting.
func DefaultConfig() Config {
	return Config{
		ProfitabilityWeight: decimal.NewFromFloat(0.40),
		RiskWeight:          decimal.NewFromFloat(0.30),
		LiquidityWeight:     decimal.NewFromFloat(0.20),
		TechnicalWeight:     decimal.NewFromFloat(0.10),
		MinTotalScore:       decimal.NewFromInt(60),
		RRSaturation:        decimal.NewFromInt(2),
		SpreadPctCeiling:    decimal.NewFromFloat(0.20),
		OpenInterestCeiling: 5000,
		VolumeCeiling:       2000,
	}
}

// Calculator scores candidates with a fixed configuration.
type Calculator struct {
	cfg Config
}

// New creates a Calculator, filling zero-valued config fields with
// defaults.
func New(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.ProfitabilityWeight.IsZero() && cfg.RiskWeight.IsZero() &&
		cfg.LiquidityWeight.IsZero() && cfg.TechnicalWeight.IsZero() {
		cfg.ProfitabilityWeight = def.ProfitabilityWeight
		cfg.RiskWeight = def.RiskWeight
		cfg.LiquidityWeight = def.LiquidityWeight
		cfg.TechnicalWeight = def.TechnicalWeight
	}
	if cfg.MinTotalScore.IsZero() {
		cfg.MinTotalScore = def.MinTotalScore
	}
	if cfg.RRSaturation.IsZero() {
		cfg.RRSaturation = def.RRSaturation
	}
	if cfg.SpreadPctCeiling.IsZero() {
		cfg.SpreadPctCeiling = def.SpreadPctCeiling
	}
	if cfg.OpenInterestCeiling == 0 {
		cfg.OpenInterestCeiling = def.OpenInterestCeiling
	}
	if cfg.VolumeCeiling == 0 {
		cfg.VolumeCeiling = def.VolumeCeiling
	}
	return &Calculator{cfg: cfg}
}

// MinTotalScore returns the configured composite cut-off.
func (s *Calculator) MinTotalScore() decimal.Decimal { return s.cfg.MinTotalScore }

// Score computes the candidate's composite 0–100 score and fills in its
// LiquidityScore and TraditionalScore fields. technicalOverride supplies
// the technical sub-score when enhanced data exists; nil means the
// neutral default of 50.
func (s *Calculator) Score(c *models.PMCCCandidate, technicalOverride *decimal.Decimal) decimal.Decimal {
	liquidity := s.LiquidityScore(&c.LongLeaps, &c.ShortCall)
	c.LiquidityScore = liquidity

	profitability := s.ProfitabilityScore(c.RiskRewardRatio)
	risk := s.RiskScore(c.MaxLoss, c.UnderlyingPrice, c.StrategyGreeks.Theta)
	technical := decimal.NewFromInt(50)
	if technicalOverride != nil {
		technical = clampScore(*technicalOverride)
	}

	total := profitability.Mul(s.cfg.ProfitabilityWeight).
		Add(risk.Mul(s.cfg.RiskWeight)).
		Add(liquidity.Mul(s.cfg.LiquidityWeight)).
		Add(technical.Mul(s.cfg.TechnicalWeight)).
		Round(2)

	c.TraditionalScore = total
	return total
}

// ProfitabilityScore maps the risk/reward ratio through a logistic curve
// that saturates near the configured ratio (default 2.0).
func (s *Calculator) ProfitabilityScore(rr decimal.Decimal) decimal.Decimal {
	sat, _ := s.cfg.RRSaturation.Float64()
	if sat <= 0 {
		sat = 2
	}
	x, _ := rr.Float64()
	// Midpoint at half the saturation ratio; slope chosen so the curve
	// is ≈95 at the saturation point.
	k := 6.0 / sat
	mid := sat / 2.0
	v := 100.0 / (1.0 + math.Exp(-k*(x-mid)))
	return decimal.NewFromFloat(v).Round(2)
}

// RiskScore is higher when the capital at risk is small relative to the
// position's notional and when the net theta is non-negative.
func (s *Calculator) RiskScore(maxLoss, underlyingPrice, theta decimal.Decimal) decimal.Decimal {
	notional := underlyingPrice.Mul(models.ContractMultiplier)
	lossRatio := decimal.NewFromInt(1)
	if notional.IsPositive() {
		lossRatio = maxLoss.Div(notional)
		if lossRatio.GreaterThan(decimal.NewFromInt(1)) {
			lossRatio = decimal.NewFromInt(1)
		}
		if lossRatio.IsNegative() {
			lossRatio = decimal.Zero
		}
	}
	capitalScore := decimal.NewFromInt(1).Sub(lossRatio).Mul(decimal.NewFromInt(100))

	thetaScore := decimal.NewFromInt(50)
	if theta.GreaterThanOrEqual(decimal.Zero) {
		thetaScore = decimal.NewFromInt(100)
	}

	return capitalScore.Mul(decimal.NewFromFloat(0.7)).
		Add(thetaScore.Mul(decimal.NewFromFloat(0.3))).
		Round(2)
}

// LiquidityScore is the 0–100 composite over both legs: bid-ask spread
// (40%), open interest (30%) and daily volume (30%), each rescaled
// against the configured ceilings.
func (s *Calculator) LiquidityScore(long, short *models.OptionContract) decimal.Decimal {
	a := s.contractLiquidity(long)
	b := s.contractLiquidity(short)
	return a.Add(b).Div(decimal.NewFromInt(2)).Round(2)
}

func (s *Calculator) contractLiquidity(c *models.OptionContract) decimal.Decimal {
	spreadScore := decimal.Zero
	if pct, ok := c.SpreadPct(); ok {
		frac := decimal.NewFromInt(1).Sub(pct.Div(s.cfg.SpreadPctCeiling))
		spreadScore = clampScore(frac.Mul(decimal.NewFromInt(100)))
	}

	oiScore := ratioScore(c.OpenInterest, s.cfg.OpenInterestCeiling)
	volScore := ratioScore(c.Volume, s.cfg.VolumeCeiling)

	return spreadScore.Mul(decimal.NewFromFloat(0.4)).
		Add(oiScore.Mul(decimal.NewFromFloat(0.3))).
		Add(volScore.Mul(decimal.NewFromFloat(0.3)))
}

// ratioScore rescales n against ceiling into [0,100].
func ratioScore(n, ceiling int64) decimal.Decimal {
	if ceiling <= 0 || n <= 0 {
		return decimal.Zero
	}
	if n >= ceiling {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(n).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(ceiling))
}

func clampScore(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return v
}
