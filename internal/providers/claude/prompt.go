package claude

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
)

// systemPrompt frames the model as an options analyst and pins the
// output contract to strict JSON.
const systemPrompt = `You are an experienced US equity options analyst reviewing Poor Man's Covered Call (PMCC) setups: a long deep-ITM LEAPS call paired with a short near-term OTM call.

Assess the setup you are given on risk, strategy construction, liquidity, fundamentals and technicals. Be skeptical; mediocre setups should score in the 40s and 50s.

Respond with a single JSON object and nothing else, no prose and no markdown fences, with exactly these fields:
{
  "ai_score": <0-100>,
  "component_scores": {"risk": <0-100>, "strategy": <0-100>, "liquidity": <0-100>, "fundamental": <0-100>, "technical": <0-100>},
  "recommendation": "strong_buy" | "buy" | "hold" | "avoid",
  "confidence": <0-100>,
  "reasoning": "<2-4 sentences>",
  "key_strengths": ["..."],
  "key_risks": ["..."]
}`

// buildPrompt renders the candidate dossier into the user message.
func buildPrompt(a provider.AnalyzeArgs) string {
	c := a.Candidate
	var sb strings.Builder

	fmt.Fprintf(&sb, "PMCC candidate for %s (underlying %s):\n\n", c.Symbol, c.UnderlyingPrice)
	fmt.Fprintf(&sb, "Long LEAPS: strike %s, expiry %s (%d DTE), delta %s, ask %s, OI %d\n",
		c.LongLeaps.Strike, c.LongLeaps.Expiration.Format("2006-01-02"), c.LongLeaps.DTE,
		c.LongLeaps.AbsDelta(), decOrDash(c.LongLeaps.Ask), c.LongLeaps.OpenInterest)
	fmt.Fprintf(&sb, "Short call: strike %s, expiry %s (%d DTE), delta %s, bid %s, OI %d\n",
		c.ShortCall.Strike, c.ShortCall.Expiration.Format("2006-01-02"), c.ShortCall.DTE,
		c.ShortCall.AbsDelta(), decOrDash(c.ShortCall.Bid), c.ShortCall.OpenInterest)
	fmt.Fprintf(&sb, "\nEconomics: net debit %s, max profit %s, max loss %s, breakeven %s, risk/reward %s\n",
		c.NetDebit, c.MaxProfit, c.MaxLoss, c.BreakevenPrice, c.RiskRewardRatio.Round(2))
	fmt.Fprintf(&sb, "Net greeks: delta %s, theta %s, vega %s\n",
		c.StrategyGreeks.Delta.Round(3), c.StrategyGreeks.Theta.Round(3), c.StrategyGreeks.Vega.Round(3))
	fmt.Fprintf(&sb, "Traditional score: %s/100\n", c.TraditionalScore.Round(1))
	if len(c.Warnings) > 0 {
		fmt.Fprintf(&sb, "Warnings: %s\n", strings.Join(c.Warnings, "; "))
	}

	if e := a.Enhanced; e != nil {
		sb.WriteString("\n--- Stock context ---\n")
		if f := e.Fundamentals; f != nil {
			fmt.Fprintf(&sb, "Sector: %s / %s, market cap %s\n", f.Sector, f.Industry, f.MarketCap)
			if f.PERatio != nil {
				fmt.Fprintf(&sb, "P/E: %s", f.PERatio.Round(1))
				if f.ForwardPE != nil {
					fmt.Fprintf(&sb, " (forward %s)", f.ForwardPE.Round(1))
				}
				sb.WriteString("\n")
			}
			if f.Beta != nil {
				fmt.Fprintf(&sb, "Beta: %s\n", f.Beta.Round(2))
			}
		}
		if cal := e.CalendarEvents; cal != nil {
			if cal.NextEarningsDate != nil {
				fmt.Fprintf(&sb, "Next earnings: %s", cal.NextEarningsDate.Format("2006-01-02"))
				if cal.EarningsWithin21D {
					sb.WriteString(" (within 21 days)")
				}
				sb.WriteString("\n")
			}
			if cal.ExDividendDate != nil {
				fmt.Fprintf(&sb, "Ex-dividend: %s\n", cal.ExDividendDate.Format("2006-01-02"))
			}
		}
		if t := e.Technicals; t != nil {
			fmt.Fprintf(&sb, "Trend: %s", t.TrendSignal)
			if t.RSI14 != nil {
				fmt.Fprintf(&sb, ", RSI14 %s", t.RSI14.Round(0))
			}
			sb.WriteString("\n")
		}
		if len(e.Headlines) > 0 {
			sb.WriteString("Recent headlines:\n")
			for i, h := range e.Headlines {
				if i >= 5 {
					break
				}
				fmt.Fprintf(&sb, "- %s (%s)\n", h.Title, h.Source)
			}
		}
	}

	if a.Market.MarketTrend != "" || a.Market.VIX != nil {
		sb.WriteString("\n--- Market backdrop ---\n")
		if a.Market.VIX != nil {
			fmt.Fprintf(&sb, "VIX: %s\n", a.Market.VIX.Round(1))
		}
		if a.Market.MarketTrend != "" {
			fmt.Fprintf(&sb, "Trend: %s\n", a.Market.MarketTrend)
		}
		if a.Market.ContextNotes != "" {
			fmt.Fprintf(&sb, "%s\n", a.Market.ContextNotes)
		}
	}

	return sb.String()
}

func decOrDash(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
