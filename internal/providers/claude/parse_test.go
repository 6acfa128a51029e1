package claude

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

const goodPayload = `{
  "ai_score": 72,
  "component_scores": {"risk": 65, "strategy": 80, "liquidity": 70, "fundamental": 68, "technical": 75},
  "recommendation": "buy",
  "confidence": 81,
  "reasoning": "Deep ITM LEAPS with healthy extrinsic on the short leg.",
  "key_strengths": ["wide profit zone"],
  "key_risks": ["earnings inside short leg life"]
}`

func TestParseAnalysis(t *testing.T) {
	a, err := parseAnalysis(goodPayload, "AAPL")
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if a.Symbol != "AAPL" {
		t.Errorf("Symbol = %q", a.Symbol)
	}
	if !a.AIScore.Equal(dec(72)) {
		t.Errorf("AIScore = %s, want 72", a.AIScore)
	}
	if a.Recommendation != models.RecBuy {
		t.Errorf("Recommendation = %q, want buy", a.Recommendation)
	}
	if !a.ComponentScores.Strategy.Equal(dec(80)) {
		t.Errorf("strategy component = %s, want 80", a.ComponentScores.Strategy)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseAnalysisStripsFences(t *testing.T) {
	fenced := "```json\n" + goodPayload + "\n```"
	a, err := parseAnalysis(fenced, "MSFT")
	if err != nil {
		t.Fatalf("parseAnalysis with fences: %v", err)
	}
	if !a.Confidence.Equal(dec(81)) {
		t.Errorf("Confidence = %s, want 81", a.Confidence)
	}
}

func TestParseAnalysisMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"ai_score":       strings.Replace(goodPayload, `"ai_score": 72,`, "", 1),
		"recommendation": strings.Replace(goodPayload, `"recommendation": "buy",`, "", 1),
		"confidence":     strings.Replace(goodPayload, `"confidence": 81,`, "", 1),
		"component":      strings.Replace(goodPayload, `"risk": 65,`, "", 1),
	}
	for name, payload := range cases {
		if _, err := parseAnalysis(payload, "AAPL"); err == nil {
			t.Errorf("parseAnalysis accepted payload missing %s", name)
		}
	}
}

func TestParseAnalysisRejectsProse(t *testing.T) {
	if _, err := parseAnalysis("I think this trade looks good overall.", "AAPL"); err == nil {
		t.Fatal("parseAnalysis accepted non-JSON prose")
	}
}

func TestValidateRejectsOutOfRangeScore(t *testing.T) {
	bad := strings.Replace(goodPayload, `"ai_score": 72`, `"ai_score": 140`, 1)
	a, err := parseAnalysis(bad, "AAPL")
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if err := a.Validate(); err == nil {
		t.Fatal("Validate accepted ai_score of 140")
	}
}
