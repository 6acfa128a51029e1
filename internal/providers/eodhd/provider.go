// Package eodhd implements the screening and fundamentals provider over
// the EODHD REST API. It deliberately does not declare the option-chain
// operations even though the upstream exposes them: options routing and
// cost control belong to the options provider alone.
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openquant/pmccscan/internal/infra"
	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

const providerID = "eodhd"

// quotesPerCredit is the upstream's batch pricing: one credit per ten
// symbols in a batch quote request, rounded up.
const quotesPerCredit = 10

// Provider implements provider.Provider for EODHD.
type Provider struct {
	apiKey  string
	baseURL string
	cache   *infra.Cache
	limiter *infra.Limiter // shared with the registry; fed from quota headers
}

// New creates an EODHD provider. limiter may be nil in tests.
func New(apiKey, baseURL string, limiter *infra.Limiter) *Provider {
	if baseURL == "" {
		baseURL = "https://eodhd.com/api"
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   infra.NewCache(5 * time.Minute),
		limiter: limiter,
	}
}

func (p *Provider) ID() string { return providerID }

func (p *Provider) SupportedOps() []provider.Op {
	return []provider.Op{
		provider.OpScreenStocks,
		provider.OpGetQuote,
		provider.OpGetQuotesBatch,
		provider.OpGetFundamentals,
		provider.OpGetCalendarEvents,
		provider.OpGetTechnicals,
	}
}

func (p *Provider) Supports(op provider.Op) bool {
	for _, o := range p.SupportedOps() {
		if o == op {
			return true
		}
	}
	return false
}

// EstimateCredits prices an op before it is dispatched. Screening and
// single-symbol lookups cost one credit; batch quotes are priced per
// ten symbols.
func (p *Provider) EstimateCredits(op provider.Op, args any) int {
	if op == provider.OpGetQuotesBatch {
		if a, ok := args.(provider.QuotesBatchArgs); ok {
			return (len(a.Symbols) + quotesPerCredit - 1) / quotesPerCredit
		}
	}
	return 1
}

// HealthProbe verifies connectivity and the API token with a minimal
// quote request.
func (p *Provider) HealthProbe(ctx context.Context) error {
	var raw json.RawMessage
	err := p.fetchJSON(ctx, "/real-time/AAPL.US", url.Values{}, &raw)
	return err
}

// Call dispatches one operation. Exactly one upstream attempt; the
// registry owns retries.
func (p *Provider) Call(ctx context.Context, op provider.Op, args any) (*provider.Result, error) {
	start := time.Now()
	var (
		data   any
		cached bool
		err    error
	)
	switch op {
	case provider.OpScreenStocks:
		a, ok := args.(provider.ScreenArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, err = p.screenStocks(ctx, a)
	case provider.OpGetQuote:
		a, ok := args.(provider.QuoteArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, err = p.getQuote(ctx, a.Symbol)
	case provider.OpGetQuotesBatch:
		a, ok := args.(provider.QuotesBatchArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, err = p.getQuotesBatch(ctx, a.Symbols)
	case provider.OpGetFundamentals:
		a, ok := args.(provider.FundamentalsArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, cached, err = p.getFundamentals(ctx, a.Symbol)
	case provider.OpGetCalendarEvents:
		a, ok := args.(provider.CalendarArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, err = p.getCalendarEvents(ctx, a)
	case provider.OpGetTechnicals:
		a, ok := args.(provider.TechnicalsArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		data, err = p.getTechnicals(ctx, a.Symbol)
	default:
		return nil, provider.Errorf(provider.KindUnsupportedOp, providerID, op, "op not supported")
	}
	if err != nil {
		return nil, err
	}
	return &provider.Result{
		Data:    data,
		Credits: p.EstimateCredits(op, args),
		Latency: time.Since(start),
		Cached:  cached,
	}, nil
}

func badArgs(op provider.Op, args any) error {
	return provider.Errorf(provider.KindConfig, providerID, op, "wrong args type %T", args)
}

// --- Operation handlers ---

func (p *Provider) screenStocks(ctx context.Context, a provider.ScreenArgs) ([]models.ScreenedStock, error) {
	q := url.Values{}
	q.Set("sort", "market_capitalization.desc")
	limit := a.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	q.Set("limit", strconv.Itoa(limit))
	if a.Offset > 0 {
		q.Set("offset", strconv.Itoa(a.Offset))
	}
	if f := buildScreenFilters(a.Criteria); f != "" {
		q.Set("filters", f)
	}

	var raw screenerResponse
	if err := p.fetchJSON(ctx, "/screener", q, &raw); err != nil {
		return nil, fmt.Errorf("eodhd screener: %w", err)
	}

	out := make([]models.ScreenedStock, 0, len(raw.Data))
	for _, r := range raw.Data {
		out = append(out, models.ScreenedStock{
			Symbol:    strings.TrimSuffix(r.Code, ".US"),
			Name:      r.Name,
			Exchange:  r.Exchange,
			Sector:    r.Sector,
			MarketCap: decFromFloat(r.MarketCap),
		})
	}
	return out, nil
}

func (p *Provider) getQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var raw realtimeQuote
	if err := p.fetchJSON(ctx, "/real-time/"+usTicker(symbol), url.Values{}, &raw); err != nil {
		return nil, fmt.Errorf("eodhd quote %s: %w", symbol, err)
	}
	quote := raw.toQuote(symbol)
	if quote == nil {
		return nil, provider.Errorf(provider.KindNoData, providerID, provider.OpGetQuote,
			"no quote data for %s", symbol)
	}
	return quote, nil
}

func (p *Provider) getQuotesBatch(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	// First symbol in the path, the rest via s=.
	q := url.Values{}
	if len(symbols) > 1 {
		rest := make([]string, 0, len(symbols)-1)
		for _, s := range symbols[1:] {
			rest = append(rest, usTicker(s))
		}
		q.Set("s", strings.Join(rest, ","))
	}

	body, hdr, err := p.rawGet(ctx, "/real-time/"+usTicker(symbols[0]), q)
	if err != nil {
		return nil, fmt.Errorf("eodhd batch quotes: %w", err)
	}
	defer body.Close()
	p.syncQuota(hdr)

	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("eodhd batch quotes: read: %w", err)
	}

	// A single-symbol request returns an object, multi returns an array.
	var raws []realtimeQuote
	if err := json.Unmarshal(payload, &raws); err != nil {
		var one realtimeQuote
		if err2 := json.Unmarshal(payload, &one); err2 != nil {
			return nil, provider.NewError(provider.KindParse, providerID, provider.OpGetQuotesBatch,
				fmt.Errorf("decode batch quotes: %w", err))
		}
		raws = []realtimeQuote{one}
	}

	out := make([]models.Quote, 0, len(raws))
	for _, r := range raws {
		if q := r.toQuote(strings.TrimSuffix(r.Code, ".US")); q != nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (p *Provider) getFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, bool, error) {
	key := "fund:" + symbol
	if v, ok := p.cache.Get(key); ok {
		return v.(*models.Fundamentals), true, nil
	}

	var raw fundamentalsResponse
	if err := p.fetchJSON(ctx, "/fundamentals/"+usTicker(symbol), url.Values{}, &raw); err != nil {
		return nil, false, fmt.Errorf("eodhd fundamentals %s: %w", symbol, err)
	}

	f := raw.toFundamentals()
	p.cache.SetWithTTL(key, f, time.Hour)
	return f, false, nil
}

func (p *Provider) getCalendarEvents(ctx context.Context, a provider.CalendarArgs) (*models.CalendarEvents, error) {
	q := url.Values{}
	q.Set("symbols", usTicker(a.Symbol))
	if !a.From.IsZero() {
		q.Set("from", a.From.Format("2006-01-02"))
	}
	if !a.To.IsZero() {
		q.Set("to", a.To.Format("2006-01-02"))
	}

	var raw earningsCalendarResponse
	if err := p.fetchJSON(ctx, "/calendar/earnings", q, &raw); err != nil {
		return nil, fmt.Errorf("eodhd calendar %s: %w", a.Symbol, err)
	}

	events := &models.CalendarEvents{}
	for _, e := range raw.Earnings {
		d, err := time.Parse("2006-01-02", e.ReportDate)
		if err != nil {
			continue
		}
		if events.NextEarningsDate == nil || d.Before(*events.NextEarningsDate) {
			events.NextEarningsDate = &d
		}
	}
	if events.NextEarningsDate != nil {
		until := events.NextEarningsDate.Sub(time.Now().UTC())
		events.EarningsWithin21D = until >= 0 && until <= 21*24*time.Hour
	}

	// Dividend calendar rides along on the same credit tier.
	var div dividendResponse
	if err := p.fetchJSON(ctx, "/div/"+usTicker(a.Symbol), url.Values{"from": {time.Now().UTC().Format("2006-01-02")}}, &div); err == nil && len(div) > 0 {
		if d, err := time.Parse("2006-01-02", div[0].Date); err == nil {
			events.ExDividendDate = &d
			amt := decFromFloat(div[0].Value)
			events.DividendAmount = &amt
		}
	}
	return events, nil
}

func (p *Provider) getTechnicals(ctx context.Context, symbol string) (*models.Technicals, error) {
	var raw technicalsResponse
	if err := p.fetchJSON(ctx, "/technicals/"+usTicker(symbol), url.Values{"function": {"summary"}}, &raw); err != nil {
		return nil, fmt.Errorf("eodhd technicals %s: %w", symbol, err)
	}
	return raw.toTechnicals(), nil
}

// --- HTTP plumbing ---

func (p *Provider) fetchJSON(ctx context.Context, path string, q url.Values, dest any) error {
	body, hdr, err := p.rawGet(ctx, path, q)
	if err != nil {
		return err
	}
	defer body.Close()
	p.syncQuota(hdr)

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return provider.NewError(provider.KindParse, providerID, "",
			fmt.Errorf("parse EODHD JSON: %w", err))
	}
	return nil
}

func (p *Provider) rawGet(ctx context.Context, path string, q url.Values) (io.ReadCloser, http.Header, error) {
	q.Set("api_token", p.apiKey)
	q.Set("fmt", "json")
	return infra.DoGet(ctx, p.baseURL+path+"?"+q.Encode(), nil)
}

// syncQuota feeds the upstream's remaining-quota header into the daily
// bucket so local accounting never drifts optimistic.
func (p *Provider) syncQuota(hdr http.Header) {
	if p.limiter == nil || hdr == nil {
		return
	}
	if raw := hdr.Get("X-RateLimit-Remaining"); raw != "" {
		if remaining, err := strconv.ParseInt(raw, 10, 64); err == nil {
			p.limiter.SyncRemaining(remaining)
		}
	}
}

// usTicker appends the .US exchange suffix EODHD expects.
func usTicker(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}
