package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ScanPhase identifies the pipeline stage an error was recorded in.
type ScanPhase string

const (
	PhaseScreening    ScanPhase = "screening"
	PhaseAnalysis     ScanPhase = "analysis"
	PhaseEnhancement  ScanPhase = "enhancement"
	PhaseAI           ScanPhase = "ai"
	PhaseNotification ScanPhase = "notification"
	PhaseExport       ScanPhase = "export"
)

// ScanError records a non-fatal failure local to a phase or symbol.
type ScanError struct {
	Phase      ScanPhase `json:"phase"`
	Symbol     string    `json:"symbol,omitempty"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	ProviderID string    `json:"provider_id,omitempty"`
	Retryable  bool      `json:"retryable"`
	At         time.Time `json:"at"`
}

// ScanStats counts work done at each stage of a scan.
type ScanStats struct {
	Screened            int `json:"screened"`
	PassedScreening     int `json:"passed_screening"`
	ChainsAnalyzed      int `json:"chains_analyzed"`
	CandidatesFound     int `json:"candidates_found"`
	InvariantViolations int `json:"invariant_violations"`
	AIAnalyzed          int `json:"ai_analyzed"`
}

// ProviderUsage aggregates the registry's per-provider accounting.
type ProviderUsage struct {
	Calls      int64         `json:"calls"`
	Credits    int64         `json:"credits"`
	Errors     int64         `json:"errors"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// RankedOpportunity is a PMCC candidate enriched with optional enhanced
// data and AI analysis, ranked by combined score.
type RankedOpportunity struct {
	PMCC          PMCCCandidate      `json:"pmcc"`
	Enhanced      *EnhancedStockData `json:"enhanced,omitempty"`
	AI            *AIAnalysis        `json:"ai,omitempty"`
	CombinedScore decimal.Decimal    `json:"combined_score"`
}

// ai/traditional blend weights for the combined score.
var (
	traditionalWeight = decimal.NewFromFloat(0.6)
	aiWeight          = decimal.NewFromFloat(0.4)
)

// RecomputeCombinedScore sets CombinedScore to
// round(0.6·traditional + 0.4·ai, 2) when AI is present, else the
// traditional score unchanged.
func (r *RankedOpportunity) RecomputeCombinedScore() {
	if r.AI == nil {
		r.CombinedScore = r.PMCC.TraditionalScore
		return
	}
	r.CombinedScore = r.PMCC.TraditionalScore.Mul(traditionalWeight).
		Add(r.AI.AIScore.Mul(aiWeight)).
		Round(2)
}

// ScanResults is the complete artifact of one scan run.
type ScanResults struct {
	ScanID         string                   `json:"scan_id"`
	StartedAt      time.Time                `json:"started_at"`
	CompletedAt    time.Time                `json:"completed_at"`
	ConfigSnapshot map[string]any           `json:"config_snapshot,omitempty"`
	Stats          ScanStats                `json:"stats"`
	ProviderUsage  map[string]ProviderUsage `json:"provider_usage,omitempty"`
	Opportunities  []RankedOpportunity      `json:"opportunities"`
	Errors         []ScanError              `json:"errors,omitempty"`
	Warnings       []string                 `json:"warnings,omitempty"`
}

// Sort orders opportunities by combined score descending. Ties keep
// their existing relative order.
func (s *ScanResults) Sort() {
	sort.SliceStable(s.Opportunities, func(i, j int) bool {
		return s.Opportunities[i].CombinedScore.GreaterThan(s.Opportunities[j].CombinedScore)
	})
}

// Truncate keeps at most topK opportunities after sorting.
func (s *ScanResults) Truncate(topK int) {
	if topK > 0 && len(s.Opportunities) > topK {
		s.Opportunities = s.Opportunities[:topK]
	}
}

// AddError appends a scan error, stamping the time if unset.
func (s *ScanResults) AddError(e ScanError) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.Errors = append(s.Errors, e)
}

// AddWarning appends a free-form warning line.
func (s *ScanResults) AddWarning(w string) {
	s.Warnings = append(s.Warnings, w)
}
