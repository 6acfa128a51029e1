// Package claude implements the LLM analysis provider over Anthropic's
// Messages API. It supports a single operation: reviewing one PMCC
// candidate dossier and returning a structured AIAnalysis.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/infra"
	"github.com/openquant/pmccscan/internal/provider"
)

const providerID = "claude"

// Config sizes the Claude adapter.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider implements provider.Provider for the Anthropic Messages API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a Claude provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *Provider) ID() string { return providerID }

func (p *Provider) SupportedOps() []provider.Op {
	return []provider.Op{provider.OpAnalyzePMCC}
}

func (p *Provider) Supports(op provider.Op) bool {
	return op == provider.OpAnalyzePMCC
}

// EstimateCredits returns the estimated cost of one analysis in cents,
// sized from the prompt and the configured completion ceiling.
func (p *Provider) EstimateCredits(op provider.Op, args any) int {
	if op != provider.OpAnalyzePMCC {
		return 1
	}
	a, ok := args.(provider.AnalyzeArgs)
	if !ok {
		return 1
	}
	prompt := buildPrompt(a)
	cost := estimateCostUSD(p.cfg.Model, len(prompt)/4, p.cfg.MaxTokens)
	cents := cost.Mul(decimal.NewFromInt(100)).Ceil().IntPart()
	if cents < 1 {
		cents = 1
	}
	return int(cents)
}

// EstimateCostUSD returns the pre-call USD estimate for one analysis.
// The AI orchestrator uses this for its budget gate.
func (p *Provider) EstimateCostUSD(args provider.AnalyzeArgs) decimal.Decimal {
	prompt := buildPrompt(args)
	return estimateCostUSD(p.cfg.Model, len(prompt)/4, p.cfg.MaxTokens)
}

// HealthProbe sends a minimal messages request to verify the key.
func (p *Provider) HealthProbe(ctx context.Context) error {
	req := messagesRequest{
		Model:     p.cfg.Model,
		MaxTokens: 1,
		Messages:  []message{{Role: "user", Content: "ping"}},
	}
	_, err := p.send(ctx, req)
	return err
}

// Call dispatches the single supported operation.
func (p *Provider) Call(ctx context.Context, op provider.Op, args any) (*provider.Result, error) {
	if op != provider.OpAnalyzePMCC {
		return nil, provider.Errorf(provider.KindUnsupportedOp, providerID, op, "op not supported")
	}
	a, ok := args.(provider.AnalyzeArgs)
	if !ok || a.Candidate == nil {
		return nil, provider.Errorf(provider.KindConfig, providerID, op, "wrong args type %T", args)
	}

	start := time.Now()
	req := messagesRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: buildPrompt(a)}},
	}

	resp, err := p.send(ctx, req)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(resp.text(), a.Candidate.Symbol)
	if err != nil {
		return nil, provider.NewError(provider.KindParse, providerID, op, err)
	}
	analysis.ModelID = resp.Model
	analysis.PromptTokens = resp.Usage.InputTokens
	analysis.CompletionTokens = resp.Usage.OutputTokens
	analysis.CostEstimate = actualCostUSD(p.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	analysis.CompletedAt = time.Now().UTC()

	if err := analysis.Validate(); err != nil {
		return nil, provider.NewError(provider.KindParse, providerID, op, err)
	}

	cents := analysis.CostEstimate.Mul(decimal.NewFromInt(100)).Ceil().IntPart()
	return &provider.Result{
		Data:    analysis,
		Credits: int(cents),
		Latency: time.Since(start),
	}, nil
}

// send performs one Messages API request.
func (p *Provider) send(ctx context.Context, req messagesRequest) (*messagesResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("claude: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &infra.ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var result messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, provider.NewError(provider.KindParse, providerID, provider.OpAnalyzePMCC,
			fmt.Errorf("decode response: %w", err))
	}
	return &result, nil
}

// --- Messages API wire types ---

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r *messagesResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// --- Pricing ---

// modelPricing is USD per million tokens, input/output.
var modelPricing = map[string][2]float64{
	"claude-sonnet-4-20250514":  {3.00, 15.00},
	"claude-3-5-haiku-20241022": {0.80, 4.00},
	"claude-3-haiku-20240307":   {0.25, 1.25},
}

var defaultPricing = [2]float64{3.00, 15.00}

func pricing(model string) [2]float64 {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	return defaultPricing
}

func estimateCostUSD(model string, promptTokens, maxCompletionTokens int) decimal.Decimal {
	return actualCostUSD(model, promptTokens, maxCompletionTokens)
}

func actualCostUSD(model string, inputTokens, outputTokens int) decimal.Decimal {
	p := pricing(model)
	million := decimal.NewFromInt(1_000_000)
	in := decimal.NewFromInt(int64(inputTokens)).Mul(decimal.NewFromFloat(p[0])).Div(million)
	out := decimal.NewFromInt(int64(outputTokens)).Mul(decimal.NewFromFloat(p[1])).Div(million)
	return in.Add(out).Round(6)
}
