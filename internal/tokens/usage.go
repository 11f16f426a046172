package tokens

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// UsageEntry is one recorded call, adapted from mbflow's Transaction
// ledger shape (pkg/models/transaction.go's BalanceBefore/BalanceAfter
// bookkeeping) onto token/cost usage: CostBefore/CostAfter record the
// running total on the entry's (provider, model) rollup at the moment it
// was appended, giving the same before/after audit trail the ledger
// style provides for money.
type UsageEntry struct {
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         decimal.Decimal
	Currency     string
	CostBefore   decimal.Decimal
	CostAfter    decimal.Decimal
	RecordedAt   time.Time
}

// Rollup accumulates usage for one (provider, model) pair.
type Rollup struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	Cost         decimal.Decimal
}

// Accountant ties counting, pricing, and the usage log together behind
// count/estimate-cost/record operations.
type Accountant struct {
	counters *Registry
	pricing  *PricingCache
	clock    func() time.Time

	mu      sync.Mutex
	log     []UsageEntry
	rollups map[string]*Rollup
}

// NewAccountant constructs an Accountant. clock defaults to time.Now.
func NewAccountant(counters *Registry, pricing *PricingCache, clock func() time.Time) *Accountant {
	if clock == nil {
		clock = time.Now
	}
	return &Accountant{
		counters: counters,
		pricing:  pricing,
		clock:    clock,
		rollups:  map[string]*Rollup{},
	}
}

// Count implements §4.9's count(provider, model, text) -> int.
func (a *Accountant) Count(provider, model, text string) (int, error) {
	return a.counters.Count(provider, model, text)
}

// EstimateCost implements §4.9's estimate_cost(provider, model, in_tok,
// out_tok) -> decimal.
func (a *Accountant) EstimateCost(provider, model string, inTok, outTok int) (decimal.Decimal, error) {
	entry, err := a.pricing.Get(provider, model)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.EstimateCost(inTok, outTok), nil
}

// Record appends a usage entry and updates the (provider, model) rollup.
// Rollups are approximate-atomic: concurrent readers may observe a
// strictly monotonic but not necessarily instantaneous snapshot, per
// spec.md §4.10.
func (a *Accountant) Record(provider, model string, inTok, outTok int) (UsageEntry, error) {
	priced, err := a.pricing.Get(provider, model)
	if err != nil {
		return UsageEntry{}, err
	}
	cost := priced.EstimateCost(inTok, outTok)
	currency := priced.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := pricingKey(provider, model)
	r, ok := a.rollups[key]
	if !ok {
		r = &Rollup{Cost: decimal.Zero}
		a.rollups[key] = r
	}
	before := r.Cost
	r.Calls++
	r.InputTokens += int64(inTok)
	r.OutputTokens += int64(outTok)
	r.Cost = r.Cost.Add(cost)

	entry := UsageEntry{
		Provider:     provider,
		Model:        model,
		InputTokens:  inTok,
		OutputTokens: outTok,
		Cost:         cost,
		Currency:     currency,
		CostBefore:   before,
		CostAfter:    r.Cost,
		RecordedAt:   a.clock(),
	}
	a.log = append(a.log, entry)
	return entry, nil
}

// Rollup returns a snapshot of the accumulated usage for (provider, model).
func (a *Accountant) Rollup(provider, model string) Rollup {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.rollups[pricingKey(provider, model)]; ok {
		return *r
	}
	return Rollup{Cost: decimal.Zero}
}

// Log returns a copy of the full usage log, oldest first.
func (a *Accountant) Log() []UsageEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]UsageEntry{}, a.log...)
}

// Reset clears the usage log and rollups. Resets are explicit, per
// spec.md §4.10 ("no automatic zeroing except the daily window").
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = nil
	a.rollups = map[string]*Rollup{}
}
