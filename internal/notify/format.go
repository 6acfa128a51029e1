package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// chatBodyLimit is the primary channel's body budget in characters.
const chatBodyLimit = 1500

// FormatChat renders the short-form chat payload: a header line and one
// concise line per opportunity, capped at topN and the body limit. Pure.
func FormatChat(results *models.ScanResults, topN int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "PMCC scan %s\n", results.StartedAt.Format("2006-01-02"))
	fmt.Fprintf(&sb, "%d screened, %d candidates, %d shown\n",
		results.Stats.Screened, results.Stats.CandidatesFound, min(topN, len(results.Opportunities)))

	if len(results.Opportunities) == 0 {
		sb.WriteString("\nNo opportunities cleared the score floor.")
	}

	// Room kept free for the overflow marker and the error count line.
	reserve := len(fmt.Sprintf("\n… %d more in the email report", len(results.Opportunities)))
	if n := len(results.Errors); n > 0 {
		reserve += len(fmt.Sprintf("\n\n%d error(s) during the scan", n))
	}

	for i, opp := range results.Opportunities {
		if i >= topN {
			break
		}
		c := &opp.PMCC
		line := fmt.Sprintf("\n%d. %s %s: buy %s %sC / sell %s %sC, debit %s, RR %s, score %s",
			i+1, c.Symbol, c.UnderlyingPrice.Round(2),
			c.LongLeaps.Expiration.Format("Jan06"), c.LongLeaps.Strike.Round(0),
			c.ShortCall.Expiration.Format("Jan02"), c.ShortCall.Strike.Round(0),
			c.NetDebit.Round(2), c.RiskRewardRatio.Round(2), opp.CombinedScore.Round(1))
		if opp.AI != nil {
			line += fmt.Sprintf(" [%s]", opp.AI.Recommendation)
		}
		if sb.Len()+len(line)+reserve > chatBodyLimit {
			fmt.Fprintf(&sb, "\n… %d more in the email report", len(results.Opportunities)-i)
			break
		}
		sb.WriteString(line)
	}

	if n := len(results.Errors); n > 0 {
		fmt.Fprintf(&sb, "\n\n%d error(s) during the scan", n)
	}
	return sb.String()
}

// FormatEmailSubject renders the email subject line. Pure.
func FormatEmailSubject(results *models.ScanResults) string {
	return fmt.Sprintf("PMCC scan %s — %d opportunities",
		results.StartedAt.Format("2006-01-02"), len(results.Opportunities))
}

// FormatEmailText renders the long-form plain-text body with per-
// opportunity detail and AI reasoning when present. Pure.
func FormatEmailText(results *models.ScanResults) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "PMCC scan %s (%s)\n", results.ScanID, results.StartedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&sb, "Screened %d, passed %d, chains analyzed %d, candidates %d, AI analyzed %d\n\n",
		results.Stats.Screened, results.Stats.PassedScreening, results.Stats.ChainsAnalyzed,
		results.Stats.CandidatesFound, results.Stats.AIAnalyzed)

	for i, opp := range results.Opportunities {
		c := &opp.PMCC
		fmt.Fprintf(&sb, "%d. %s @ %s — combined score %s\n", i+1, c.Symbol,
			c.UnderlyingPrice.Round(2), opp.CombinedScore.Round(1))
		fmt.Fprintf(&sb, "   Long:  %s %s call, ask %s, delta %s, OI %d\n",
			c.LongLeaps.Expiration.Format("2006-01-02"), c.LongLeaps.Strike.Round(2),
			decStr(c.LongLeaps.Ask), c.LongLeaps.AbsDelta().Round(2), c.LongLeaps.OpenInterest)
		fmt.Fprintf(&sb, "   Short: %s %s call, bid %s, delta %s, OI %d\n",
			c.ShortCall.Expiration.Format("2006-01-02"), c.ShortCall.Strike.Round(2),
			decStr(c.ShortCall.Bid), c.ShortCall.AbsDelta().Round(2), c.ShortCall.OpenInterest)
		fmt.Fprintf(&sb, "   Debit %s, max profit %s, max loss %s, breakeven %s, RR %s\n",
			c.NetDebit.Round(2), c.MaxProfit.Round(2), c.MaxLoss.Round(2),
			c.BreakevenPrice.Round(2), c.RiskRewardRatio.Round(2))
		if len(c.Warnings) > 0 {
			fmt.Fprintf(&sb, "   Warnings: %s\n", strings.Join(c.Warnings, ", "))
		}
		if opp.AI != nil {
			fmt.Fprintf(&sb, "   AI: %s (score %s, confidence %s)\n",
				opp.AI.Recommendation, opp.AI.AIScore.Round(0), opp.AI.Confidence.Round(0))
			if opp.AI.Reasoning != "" {
				fmt.Fprintf(&sb, "   %s\n", opp.AI.Reasoning)
			}
		}
		sb.WriteString("\n")
	}

	if len(results.Warnings) > 0 {
		fmt.Fprintf(&sb, "Warnings:\n")
		for _, w := range results.Warnings {
			fmt.Fprintf(&sb, "  - %s\n", w)
		}
	}
	if len(results.Errors) > 0 {
		fmt.Fprintf(&sb, "Errors:\n")
		for _, e := range results.Errors {
			fmt.Fprintf(&sb, "  - [%s] %s %s: %s\n", e.Phase, e.Symbol, e.Kind, e.Message)
		}
	}
	return sb.String()
}

// FormatEmailHTML renders the HTML body: the text body wrapped in a
// minimal monospace layout. Pure.
func FormatEmailHTML(results *models.ScanResults) string {
	body := FormatEmailText(results)
	body = strings.ReplaceAll(body, "&", "&amp;")
	body = strings.ReplaceAll(body, "<", "&lt;")
	body = strings.ReplaceAll(body, ">", "&gt;")
	return "<html><body><pre style=\"font-family:monospace\">" + body + "</pre></body></html>"
}

func decStr(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
