// Package marketdata implements the options and quotes provider over the
// MarketData.app REST API. Chain responses include greeks; the cached
// feed trades freshness for a flat one-credit cost per call.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openquant/pmccscan/internal/infra"
	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

const providerID = "marketdata"

// liveChainEstimate is the pre-call credit estimate for a live-feed
// chain request, whose true cost is per contract in the response.
const liveChainEstimate = 25

// Provider implements provider.Provider for MarketData.app.
type Provider struct {
	apiKey      string
	baseURL     string
	defaultFeed provider.ChainFeed
	cache       *infra.Cache
}

// New creates a MarketData.app provider.
func New(apiKey, baseURL string, feed provider.ChainFeed) *Provider {
	if baseURL == "" {
		baseURL = "https://api.marketdata.app/v1"
	}
	if feed == "" {
		feed = provider.FeedCached
	}
	return &Provider{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		defaultFeed: feed,
		cache:       infra.NewCache(2 * time.Minute),
	}
}

func (p *Provider) ID() string { return providerID }

func (p *Provider) SupportedOps() []provider.Op {
	return []provider.Op{
		provider.OpGetOptionChain,
		provider.OpGetExpirations,
		provider.OpGetStrikes,
		provider.OpGetQuote,
		provider.OpGetQuotesBatch,
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

// EstimateCredits prices an op before dispatch. Chains on the cached
// feed are flat one credit; live chains are estimated per the typical
// filtered response size.
func (p *Provider) EstimateCredits(op provider.Op, args any) int {
	if op == provider.OpGetOptionChain {
		feed := p.defaultFeed
		if a, ok := args.(provider.ChainArgs); ok && a.Feed != "" {
			feed = a.Feed
		}
		if feed == provider.FeedLive {
			return liveChainEstimate
		}
	}
	return 1
}

// HealthProbe verifies connectivity and the token with a single quote.
func (p *Provider) HealthProbe(ctx context.Context) error {
	var raw stockQuoteResponse
	return p.fetchJSON(ctx, "/stocks/quotes/SPY/", url.Values{}, &raw)
}

// Call dispatches one operation with a single upstream attempt.
func (p *Provider) Call(ctx context.Context, op provider.Op, args any) (*provider.Result, error) {
	start := time.Now()
	switch op {
	case provider.OpGetOptionChain:
		a, ok := args.(provider.ChainArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		chain, credits, err := p.getOptionChain(ctx, a)
		if err != nil {
			return nil, err
		}
		return &provider.Result{Data: chain, Credits: credits, Latency: time.Since(start)}, nil
	case provider.OpGetExpirations:
		a, ok := args.(provider.ExpirationsArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		exps, err := p.getExpirations(ctx, a.Underlying)
		if err != nil {
			return nil, err
		}
		return &provider.Result{Data: exps, Credits: 1, Latency: time.Since(start)}, nil
	case provider.OpGetStrikes:
		a, ok := args.(provider.StrikesArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		strikes, err := p.getStrikes(ctx, a)
		if err != nil {
			return nil, err
		}
		return &provider.Result{Data: strikes, Credits: 1, Latency: time.Since(start)}, nil
	case provider.OpGetQuote:
		a, ok := args.(provider.QuoteArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		quote, err := p.getQuote(ctx, a.Symbol)
		if err != nil {
			return nil, err
		}
		return &provider.Result{Data: quote, Credits: 1, Latency: time.Since(start)}, nil
	case provider.OpGetQuotesBatch:
		a, ok := args.(provider.QuotesBatchArgs)
		if !ok {
			return nil, badArgs(op, args)
		}
		quotes, err := p.getQuotesBatch(ctx, a.Symbols)
		if err != nil {
			return nil, err
		}
		return &provider.Result{Data: quotes, Credits: len(quotes), Latency: time.Since(start)}, nil
	default:
		return nil, provider.Errorf(provider.KindUnsupportedOp, providerID, op, "op not supported")
	}
}

func badArgs(op provider.Op, args any) error {
	return provider.Errorf(provider.KindConfig, providerID, op, "wrong args type %T", args)
}

// --- Operation handlers ---

func (p *Provider) getOptionChain(ctx context.Context, a provider.ChainArgs) (*models.OptionChain, int, error) {
	feed := a.Feed
	if feed == "" {
		feed = p.defaultFeed
	}

	q := url.Values{}
	if a.Side != "" {
		q.Set("side", string(a.Side))
	}
	if a.MinDTE > 0 {
		q.Set("from", time.Now().UTC().AddDate(0, 0, a.MinDTE).Format("2006-01-02"))
	}
	if a.MaxDTE > 0 {
		q.Set("to", time.Now().UTC().AddDate(0, 0, a.MaxDTE).Format("2006-01-02"))
	}
	if a.MinDelta != nil {
		q.Set("delta", a.MinDelta.String()+"-"+maxDeltaBound(a))
	}
	if a.MinOpenInterest > 0 {
		q.Set("minOpenInterest", strconv.FormatInt(a.MinOpenInterest, 10))
	}
	if a.MaxSpreadPct != nil {
		q.Set("maxBidAskSpreadPct", a.MaxSpreadPct.String())
	}
	if a.IncludeGreeks {
		q.Set("columns", "greeks")
	}
	if feed == provider.FeedCached {
		q.Set("feed", "cached")
	}

	var raw chainResponse
	if err := p.fetchJSON(ctx, "/options/chain/"+a.Underlying+"/", q, &raw); err != nil {
		return nil, 0, fmt.Errorf("marketdata chain %s: %w", a.Underlying, err)
	}
	if raw.Status == "no_data" || len(raw.OptionSymbol) == 0 {
		return nil, 0, provider.Errorf(provider.KindNoData, providerID, provider.OpGetOptionChain,
			"no chain for %s", a.Underlying)
	}

	chain, err := raw.toChain(a.Underlying, time.Now().UTC())
	if err != nil {
		return nil, 0, provider.NewError(provider.KindParse, providerID, provider.OpGetOptionChain, err)
	}

	// Per-symbol-in-response pricing on the live feed; flat on cached.
	credits := 1
	if feed == provider.FeedLive {
		credits = len(chain.Contracts)
	}
	return chain, credits, nil
}

func maxDeltaBound(a provider.ChainArgs) string {
	if a.MaxDelta != nil {
		return a.MaxDelta.String()
	}
	return "1"
}

func (p *Provider) getExpirations(ctx context.Context, underlying string) ([]time.Time, error) {
	var raw expirationsResponse
	if err := p.fetchJSON(ctx, "/options/expirations/"+underlying+"/", url.Values{}, &raw); err != nil {
		return nil, fmt.Errorf("marketdata expirations %s: %w", underlying, err)
	}
	out := make([]time.Time, 0, len(raw.Expirations))
	for _, s := range raw.Expirations {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, provider.Errorf(provider.KindNoData, providerID, provider.OpGetExpirations,
			"no expirations for %s", underlying)
	}
	return out, nil
}

func (p *Provider) getStrikes(ctx context.Context, a provider.StrikesArgs) ([]float64, error) {
	q := url.Values{}
	if !a.Expiration.IsZero() {
		q.Set("expiration", a.Expiration.Format("2006-01-02"))
	}
	var raw strikesResponse
	if err := p.fetchJSON(ctx, "/options/strikes/"+a.Underlying+"/", q, &raw); err != nil {
		return nil, fmt.Errorf("marketdata strikes %s: %w", a.Underlying, err)
	}
	for _, strikes := range raw.Strikes {
		return strikes, nil
	}
	return nil, provider.Errorf(provider.KindNoData, providerID, provider.OpGetStrikes,
		"no strikes for %s", a.Underlying)
}

// getQuotesBatch uses the bulk quotes endpoint; credits are per symbol
// in the response.
func (p *Provider) getQuotesBatch(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))

	var raw stockQuoteResponse
	if err := p.fetchJSON(ctx, "/stocks/bulkquotes/", q, &raw); err != nil {
		return nil, fmt.Errorf("marketdata bulk quotes: %w", err)
	}
	out := make([]models.Quote, 0, len(raw.Symbol))
	for i := range raw.Symbol {
		quote := models.Quote{
			Symbol: raw.Symbol[i],
			Bid:    decAt(raw.Bid, i),
			Ask:    decAt(raw.Ask, i),
			Last:   decAt(raw.Last, i),
			Volume: at(raw.Volume, i),
		}
		if i < len(raw.Updated) && raw.Updated[i] > 0 {
			quote.UpdatedAt = time.Unix(raw.Updated[i], 0).UTC()
		}
		if quote.Bid != nil || quote.Ask != nil || quote.Last != nil {
			out = append(out, quote)
		}
	}
	if len(out) == 0 {
		return nil, provider.Errorf(provider.KindNoData, providerID, provider.OpGetQuotesBatch,
			"no quotes for batch of %d", len(symbols))
	}
	return out, nil
}

func (p *Provider) getQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var raw stockQuoteResponse
	if err := p.fetchJSON(ctx, "/stocks/quotes/"+symbol+"/", url.Values{}, &raw); err != nil {
		return nil, fmt.Errorf("marketdata quote %s: %w", symbol, err)
	}
	quote := raw.toQuote(symbol)
	if quote == nil {
		return nil, provider.Errorf(provider.KindNoData, providerID, provider.OpGetQuote,
			"no quote for %s", symbol)
	}
	return quote, nil
}

// --- HTTP plumbing ---

func (p *Provider) fetchJSON(ctx context.Context, path string, q url.Values, dest any) error {
	u := p.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	body, _, err := infra.DoGet(ctx, u, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return provider.NewError(provider.KindParse, providerID, "",
			fmt.Errorf("parse MarketData JSON: %w", err))
	}
	return nil
}
