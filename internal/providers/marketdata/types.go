package marketdata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// --- MarketData.app API response types ---
//
// Chain and quote payloads are column-oriented: parallel arrays indexed
// by contract position.

type chainResponse struct {
	Status          string     `json:"s"`
	OptionSymbol    []string   `json:"optionSymbol"`
	Underlying      []string   `json:"underlying"`
	Side            []string   `json:"side"`
	Strike          []float64  `json:"strike"`
	Expiration      []int64    `json:"expiration"` // unix seconds
	Bid             []*float64 `json:"bid"`
	Ask             []*float64 `json:"ask"`
	Last            []*float64 `json:"last"`
	Volume          []int64    `json:"volume"`
	OpenInterest    []int64    `json:"openInterest"`
	Delta           []*float64 `json:"delta"`
	Gamma           []*float64 `json:"gamma"`
	Theta           []*float64 `json:"theta"`
	Vega            []*float64 `json:"vega"`
	IV              []*float64 `json:"iv"`
	NonStandard     []bool     `json:"nonstandard"`
	Updated         []int64    `json:"updated"`
	UnderlyingPrice []float64  `json:"underlyingPrice"`
}

// toChain converts the column-oriented payload into an OptionChain,
// normalizing each contract as of asOf.
func (r *chainResponse) toChain(underlying string, asOf time.Time) (*models.OptionChain, error) {
	n := len(r.OptionSymbol)
	if len(r.Strike) != n || len(r.Expiration) != n || len(r.Side) != n {
		return nil, fmt.Errorf("column lengths disagree: %d symbols, %d strikes, %d expirations",
			n, len(r.Strike), len(r.Expiration))
	}

	chain := &models.OptionChain{
		Underlying: underlying,
		UpdatedAt:  asOf,
		Contracts:  make([]models.OptionContract, 0, n),
	}
	if len(r.UnderlyingPrice) > 0 {
		chain.UnderlyingPrice = decimal.NewFromFloat(r.UnderlyingPrice[0])
	}

	for i := 0; i < n; i++ {
		c := models.OptionContract{
			OptionSymbol: r.OptionSymbol[i],
			Underlying:   underlying,
			Side:         models.OptionSide(r.Side[i]),
			Strike:       decimal.NewFromFloat(r.Strike[i]),
			Expiration:   time.Unix(r.Expiration[i], 0).UTC(),
			Volume:       at(r.Volume, i),
			OpenInterest: at(r.OpenInterest, i),
			Bid:          decAt(r.Bid, i),
			Ask:          decAt(r.Ask, i),
			Last:         decAt(r.Last, i),
			Delta:        decAt(r.Delta, i),
			Gamma:        decAt(r.Gamma, i),
			Theta:        decAt(r.Theta, i),
			Vega:         decAt(r.Vega, i),
			IV:           decAt(r.IV, i),
		}
		if i < len(r.NonStandard) {
			c.NonStandard = r.NonStandard[i]
		}
		if i < len(r.Updated) && r.Updated[i] > 0 {
			c.UpdatedAt = time.Unix(r.Updated[i], 0).UTC()
		} else {
			c.UpdatedAt = asOf
		}
		c.Normalize(asOf)
		chain.Contracts = append(chain.Contracts, c)
	}
	return chain, nil
}

type expirationsResponse struct {
	Status      string   `json:"s"`
	Expirations []string `json:"expirations"`
}

type strikesResponse struct {
	Status  string               `json:"s"`
	Strikes map[string][]float64 `json:"-"`
	// The API returns {"s":"ok","2026-01-16":[100,105,...]}; decode is
	// handled by the custom unmarshaller below.
}

func (s *strikesResponse) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Strikes = make(map[string][]float64)
	for k, v := range raw {
		if k == "s" {
			if str, ok := v.(string); ok {
				s.Status = str
			}
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		strikes := make([]float64, 0, len(arr))
		for _, e := range arr {
			if f, ok := e.(float64); ok {
				strikes = append(strikes, f)
			}
		}
		s.Strikes[k] = strikes
	}
	return nil
}

type stockQuoteResponse struct {
	Status  string     `json:"s"`
	Symbol  []string   `json:"symbol"`
	Bid     []*float64 `json:"bid"`
	Ask     []*float64 `json:"ask"`
	Last    []*float64 `json:"last"`
	Volume  []int64    `json:"volume"`
	Updated []int64    `json:"updated"`
}

func (r *stockQuoteResponse) toQuote(symbol string) *models.Quote {
	if len(r.Symbol) == 0 {
		return nil
	}
	q := &models.Quote{
		Symbol: symbol,
		Bid:    decAt(r.Bid, 0),
		Ask:    decAt(r.Ask, 0),
		Last:   decAt(r.Last, 0),
		Volume: at(r.Volume, 0),
	}
	if len(r.Updated) > 0 && r.Updated[0] > 0 {
		q.UpdatedAt = time.Unix(r.Updated[0], 0).UTC()
	}
	if q.Bid == nil && q.Ask == nil && q.Last == nil {
		return nil
	}
	return q
}

func at(xs []int64, i int) int64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

func decAt(xs []*float64, i int) *decimal.Decimal {
	if i >= len(xs) || xs[i] == nil {
		return nil
	}
	d := decimal.NewFromFloat(*xs[i])
	return &d
}
