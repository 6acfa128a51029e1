package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

func testArgs() provider.AnalyzeArgs {
	long := models.OptionContract{
		Side: models.Call, Strike: dec(80),
		Expiration: time.Date(2027, 6, 18, 0, 0, 0, 0, time.UTC),
		Ask:        decp(27.4), Delta: decp(0.85), OpenInterest: 900, DTE: 470,
	}
	short := models.OptionContract{
		Side: models.Call, Strike: dec(110),
		Expiration: time.Date(2026, 4, 17, 0, 0, 0, 0, time.UTC),
		Bid:        decp(2.9), Delta: decp(0.30), OpenInterest: 400, DTE: 45,
	}
	return provider.AnalyzeArgs{
		Candidate: &models.PMCCCandidate{
			Symbol:           "AAPL",
			UnderlyingPrice:  dec(100),
			LongLeaps:        long,
			ShortCall:        short,
			NetDebit:         dec(24.5),
			MaxProfit:        dec(550),
			MaxLoss:          dec(2450),
			BreakevenPrice:   dec(104.5),
			RiskRewardRatio:  decimalDiv(550, 2450),
			TraditionalScore: dec(68),
		},
	}
}

func decp(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func decimalDiv(a, b int64) decimal.Decimal {
	return decimal.NewFromInt(a).Div(decimal.NewFromInt(b))
}

func messagesServer(t *testing.T, replyText string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"type":"overloaded_error"}}`, status)
			return
		}
		resp := map[string]any{
			"model":   "claude-sonnet-4-20250514",
			"content": []map[string]any{{"type": "text", "text": replyText}},
			"usage":   map[string]int{"input_tokens": 900, "output_tokens": 220},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCallAnalyzeHappyPath(t *testing.T) {
	srv := messagesServer(t, goodPayload, http.StatusOK)
	defer srv.Close()

	p := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	res, err := p.Call(context.Background(), provider.OpAnalyzePMCC, testArgs())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	a := res.Data.(*models.AIAnalysis)
	if a.Symbol != "AAPL" {
		t.Errorf("symbol = %q", a.Symbol)
	}
	if a.PromptTokens != 900 || a.CompletionTokens != 220 {
		t.Errorf("usage = %d/%d", a.PromptTokens, a.CompletionTokens)
	}
	// 900 in × $3/M + 220 out × $15/M = 0.0027 + 0.0033 = 0.006
	if !a.CostEstimate.Equal(dec(0.006)) {
		t.Errorf("cost = %s, want 0.006", a.CostEstimate)
	}
	if a.ModelID == "" || a.CompletedAt.IsZero() {
		t.Error("provenance fields unset")
	}
}

func TestCallRejectsProseReply(t *testing.T) {
	srv := messagesServer(t, "Looks like a decent setup to me.", http.StatusOK)
	defer srv.Close()

	p := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Call(context.Background(), provider.OpAnalyzePMCC, testArgs())
	if provider.KindOf(err) != provider.KindParse {
		t.Fatalf("error kind = %q, want parse_error", provider.KindOf(err))
	}
}

func TestCallServerErrorIsTransient(t *testing.T) {
	srv := messagesServer(t, "", http.StatusServiceUnavailable)
	defer srv.Close()

	p := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := p.Call(context.Background(), provider.OpAnalyzePMCC, testArgs())
	perr := provider.Classify("claude", provider.OpAnalyzePMCC, err)
	if perr.Kind != provider.KindTransient {
		t.Fatalf("classified as %q, want upstream_transient", perr.Kind)
	}
}

func TestSupportsOnlyAnalyze(t *testing.T) {
	p := New(Config{APIKey: "k"})
	if !p.Supports(provider.OpAnalyzePMCC) {
		t.Error("analyze not supported")
	}
	for _, op := range []provider.Op{provider.OpGetQuote, provider.OpScreenStocks, provider.OpGetOptionChain} {
		if p.Supports(op) {
			t.Errorf("Supports(%s) = true", op)
		}
	}
}

func TestEstimateCostScalesWithPrompt(t *testing.T) {
	p := New(Config{APIKey: "k", MaxTokens: 2048})
	args := testArgs()
	small := p.EstimateCostUSD(args)

	args.Enhanced = &models.EnhancedStockData{
		Fundamentals: &models.Fundamentals{Sector: "Technology", Industry: "Hardware", MarketCap: dec(2.9e12)},
		Technicals:   &models.Technicals{TrendSignal: "bullish", RSI14: decp(60)},
		Headlines: []models.NewsHeadline{
			{Title: "Apple ships record units", Source: "wire"},
			{Title: "Analysts raise AAPL targets", Source: "wire"},
		},
	}
	big := p.EstimateCostUSD(args)
	if !big.GreaterThan(small) {
		t.Errorf("richer dossier did not raise the estimate: %s vs %s", big, small)
	}
	if !small.IsPositive() {
		t.Errorf("estimate %s not positive", small)
	}
}

func TestBuildPromptMentionsLegsAndContext(t *testing.T) {
	args := testArgs()
	args.Market.MarketTrend = "risk-on"
	prompt := buildPrompt(args)
	for _, want := range []string{"AAPL", "80", "110", "24.5", "risk-on"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
