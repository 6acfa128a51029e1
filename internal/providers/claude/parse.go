package claude

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// fenceRe matches a full-body markdown code block: ```json ... ``` or
// a bare ``` ... ```.
var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownFences removes code-block formatting some models wrap
// around JSON output despite instructions.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// analysisPayload mirrors the JSON contract the system prompt pins.
type analysisPayload struct {
	AIScore         json.Number `json:"ai_score"`
	ComponentScores struct {
		Risk        json.Number `json:"risk"`
		Strategy    json.Number `json:"strategy"`
		Liquidity   json.Number `json:"liquidity"`
		Fundamental json.Number `json:"fundamental"`
		Technical   json.Number `json:"technical"`
	} `json:"component_scores"`
	Recommendation string      `json:"recommendation"`
	Confidence     json.Number `json:"confidence"`
	Reasoning      string      `json:"reasoning"`
	KeyStrengths   []string    `json:"key_strengths"`
	KeyRisks       []string    `json:"key_risks"`
}

// parseAnalysis decodes the model's reply into an AIAnalysis. Missing
// required fields are an error; the caller maps it to a parse failure.
func parseAnalysis(text, symbol string) (*models.AIAnalysis, error) {
	cleaned := stripMarkdownFences(text)

	var payload analysisPayload
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("analysis is not valid JSON: %w", err)
	}

	if payload.AIScore == "" {
		return nil, fmt.Errorf("analysis missing ai_score")
	}
	if payload.Recommendation == "" {
		return nil, fmt.Errorf("analysis missing recommendation")
	}
	if payload.Confidence == "" {
		return nil, fmt.Errorf("analysis missing confidence")
	}

	a := &models.AIAnalysis{
		Symbol:         symbol,
		Recommendation: models.Recommendation(payload.Recommendation),
		Reasoning:      payload.Reasoning,
		KeyStrengths:   payload.KeyStrengths,
		KeyRisks:       payload.KeyRisks,
	}

	var err error
	if a.AIScore, err = toDecimal("ai_score", payload.AIScore); err != nil {
		return nil, err
	}
	if a.Confidence, err = toDecimal("confidence", payload.Confidence); err != nil {
		return nil, err
	}
	cs := &a.ComponentScores
	for _, f := range []struct {
		name string
		raw  json.Number
		dst  *decimal.Decimal
	}{
		{"component_scores.risk", payload.ComponentScores.Risk, &cs.Risk},
		{"component_scores.strategy", payload.ComponentScores.Strategy, &cs.Strategy},
		{"component_scores.liquidity", payload.ComponentScores.Liquidity, &cs.Liquidity},
		{"component_scores.fundamental", payload.ComponentScores.Fundamental, &cs.Fundamental},
		{"component_scores.technical", payload.ComponentScores.Technical, &cs.Technical},
	} {
		if f.raw == "" {
			return nil, fmt.Errorf("analysis missing %s", f.name)
		}
		if *f.dst, err = toDecimal(f.name, f.raw); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func toDecimal(name string, n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("analysis field %s: %w", name, err)
	}
	return d, nil
}
