package ai

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Budget is the orchestrator-owned running cost counter for a day's LLM
// spend. Reservations are strict: an estimate that would cross the
// ceiling is refused outright, with no partial call.
type Budget struct {
	mu       sync.Mutex
	limit    decimal.Decimal
	reserved decimal.Decimal
	spent    decimal.Decimal
}

// NewBudget creates a budget with the given USD ceiling.
func NewBudget(limitUSD decimal.Decimal) *Budget {
	return &Budget{limit: limitUSD}
}

// Reserve claims estimate against the ceiling. Returns false, leaving
// the budget untouched, when spent + reserved + estimate would exceed
// the limit.
func (b *Budget) Reserve(estimate decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spent.Add(b.reserved).Add(estimate).GreaterThan(b.limit) {
		return false
	}
	b.reserved = b.reserved.Add(estimate)
	return true
}

// Commit converts a reservation into actual spend. Call with the
// original estimate and the actual cost reported by the provider.
func (b *Budget) Commit(estimate, actual decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved = b.reserved.Sub(estimate)
	if b.reserved.IsNegative() {
		b.reserved = decimal.Zero
	}
	b.spent = b.spent.Add(actual)
}

// Release drops a reservation that produced no billable call.
func (b *Budget) Release(estimate decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved = b.reserved.Sub(estimate)
	if b.reserved.IsNegative() {
		b.reserved = decimal.Zero
	}
}

// Spent returns the committed spend so far.
func (b *Budget) Spent() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// Remaining returns limit − spent − reserved, floored at zero.
func (b *Budget) Remaining() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.limit.Sub(b.spent).Sub(b.reserved)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
