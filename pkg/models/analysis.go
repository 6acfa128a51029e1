package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is the LLM's qualitative verdict on an opportunity.
type Recommendation string

const (
	RecStrongBuy Recommendation = "strong_buy"
	RecBuy       Recommendation = "buy"
	RecHold      Recommendation = "hold"
	RecAvoid     Recommendation = "avoid"
)

// ComponentScores breaks the AI score into its judged dimensions, each
// on the 0–100 scale.
type ComponentScores struct {
	Risk        decimal.Decimal `json:"risk"`
	Strategy    decimal.Decimal `json:"strategy"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	Fundamental decimal.Decimal `json:"fundamental"`
	Technical   decimal.Decimal `json:"technical"`
}

// AIAnalysis is the structured result of one LLM review of a candidate.
type AIAnalysis struct {
	Symbol           string          `json:"symbol"`
	AIScore          decimal.Decimal `json:"ai_score"`
	ComponentScores  ComponentScores `json:"component_scores"`
	Recommendation   Recommendation  `json:"recommendation"`
	Confidence       decimal.Decimal `json:"confidence"`
	Reasoning        string          `json:"reasoning,omitempty"`
	KeyStrengths     []string        `json:"key_strengths,omitempty"`
	KeyRisks         []string        `json:"key_risks,omitempty"`
	ModelID          string          `json:"model_id"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	CostEstimate     decimal.Decimal `json:"cost_estimate"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// Validate enforces the required fields and 0–100 ranges. An analysis
// that fails validation is treated as a parse failure upstream.
func (a *AIAnalysis) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("ai analysis: missing symbol")
	}
	if err := inRange("ai_score", a.AIScore); err != nil {
		return err
	}
	if err := inRange("confidence", a.Confidence); err != nil {
		return err
	}
	switch a.Recommendation {
	case RecStrongBuy, RecBuy, RecHold, RecAvoid:
	default:
		return fmt.Errorf("ai analysis: invalid recommendation %q", a.Recommendation)
	}
	for name, s := range map[string]decimal.Decimal{
		"component_scores.risk":        a.ComponentScores.Risk,
		"component_scores.strategy":    a.ComponentScores.Strategy,
		"component_scores.liquidity":   a.ComponentScores.Liquidity,
		"component_scores.fundamental": a.ComponentScores.Fundamental,
		"component_scores.technical":   a.ComponentScores.Technical,
	} {
		if err := inRange(name, s); err != nil {
			return err
		}
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

func inRange(name string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("ai analysis: %s %s outside [0,100]", name, v)
	}
	return nil
}
