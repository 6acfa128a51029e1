package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
func decp(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func richResults(n int) *models.ScanResults {
	started := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	res := &models.ScanResults{
		ScanID:    "scan-1",
		StartedAt: started,
		Stats:     models.ScanStats{Screened: 120, PassedScreening: 80, ChainsAnalyzed: 75, CandidatesFound: n},
	}
	for i := 0; i < n; i++ {
		opp := models.RankedOpportunity{
			PMCC: models.PMCCCandidate{
				Symbol:          "SYM" + string(rune('A'+i)),
				UnderlyingPrice: dec(100 + float64(i)),
				LongLeaps: models.OptionContract{
					Side: models.Call, Strike: dec(80),
					Expiration: started.AddDate(1, 0, 0), Ask: decp(27.4), Delta: decp(0.85), OpenInterest: 900,
				},
				ShortCall: models.OptionContract{
					Side: models.Call, Strike: dec(115),
					Expiration: started.AddDate(0, 1, 0), Bid: decp(2.6), Delta: decp(0.28), OpenInterest: 400,
				},
				NetDebit:         dec(24.8),
				MaxProfit:        dec(1020),
				MaxLoss:          dec(2480),
				BreakevenPrice:   dec(104.8),
				RiskRewardRatio:  dec(0.41),
				TraditionalScore: dec(71.5),
			},
			CombinedScore: dec(71.5),
		}
		res.Opportunities = append(res.Opportunities, opp)
	}
	return res
}

func TestFormatChatRespectsBodyLimit(t *testing.T) {
	body := FormatChat(richResults(40), 40)
	if len(body) > chatBodyLimit {
		t.Fatalf("chat body %d chars, limit %d", len(body), chatBodyLimit)
	}
	if !strings.Contains(body, "more in the email report") {
		t.Error("overflow marker missing from truncated body")
	}
}

func TestFormatChatCapsAtTopN(t *testing.T) {
	body := FormatChat(richResults(15), 3)
	if strings.Contains(body, "4. ") {
		t.Error("chat body rendered more than topN lines")
	}
	if !strings.Contains(body, "3. ") {
		t.Error("chat body missing the third line")
	}
}

func TestFormatChatEmptyResults(t *testing.T) {
	body := FormatChat(richResults(0), 10)
	if !strings.Contains(body, "No opportunities") {
		t.Errorf("empty-result body missing explanation: %q", body)
	}
}

func TestFormatChatIsPure(t *testing.T) {
	res := richResults(5)
	first := FormatChat(res, 10)
	second := FormatChat(res, 10)
	if first != second {
		t.Fatal("formatter output differs across calls on the same input")
	}
}

func TestFormatEmailTextIncludesDetailAndAI(t *testing.T) {
	res := richResults(2)
	res.Opportunities[0].AI = &models.AIAnalysis{
		Symbol: res.Opportunities[0].PMCC.Symbol, AIScore: dec(82),
		Recommendation: models.RecBuy, Confidence: dec(75),
		Reasoning: "Wide profit zone with modest assignment risk.",
	}
	body := FormatEmailText(res)

	for _, want := range []string{"breakeven", "Wide profit zone", "buy", "max profit"} {
		if !strings.Contains(strings.ToLower(body), strings.ToLower(want)) {
			t.Errorf("email body missing %q", want)
		}
	}
}

func TestFormatEmailHTMLEscapes(t *testing.T) {
	res := richResults(1)
	res.AddWarning("spread <wide> & thin")
	html := FormatEmailHTML(res)
	if strings.Contains(html, "<wide>") {
		t.Error("HTML body did not escape angle brackets")
	}
	if !strings.Contains(html, "&lt;wide&gt;") {
		t.Error("escaped warning missing")
	}
}
