package tokens

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flowcore/flowcore/internal/errs"
)

// DefaultCurrency is used wherever a provider or fallback row does not
// state its own currency explicitly.
const DefaultCurrency = "USD"

// Source records which tier of the pricing chain (C11) last produced a
// PricingEntry, per spec.md §4's source ∈ {Live, Cached, Fallback}.
type Source int

const (
	// SourceUnknown is the zero value: an entry that was never resolved
	// through the chain (e.g. constructed directly by a test or a
	// manual seed) rather than genuinely unset.
	SourceUnknown Source = iota
	SourceLive
	SourceCached
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "Live"
	case SourceCached:
		return "Cached"
	case SourceFallback:
		return "Fallback"
	default:
		return "Unknown"
	}
}

// PricingEntry is the per-(provider, model) cost table row. Rates are
// cost per 1000 tokens, held as decimal.Decimal exclusively so a cost
// value never touches float64 and accumulates binary-floating drift.
type PricingEntry struct {
	Provider    string
	Model       string
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
	Currency    string
	FetchedAt   time.Time
	Source      Source
}

var perThousand = decimal.NewFromInt(1000)

// EstimateCost computes the decimal-exact cost of inTok input tokens and
// outTok output tokens under entry's rates.
func (p PricingEntry) EstimateCost(inTok, outTok int) decimal.Decimal {
	inCost := p.InputPer1K.Mul(decimal.NewFromInt(int64(inTok))).Div(perThousand)
	outCost := p.OutputPer1K.Mul(decimal.NewFromInt(int64(outTok))).Div(perThousand)
	return inCost.Add(outCost)
}

// PricingCache is the in-memory, atomically-swapped cost table §4.11's
// provider chain writes into and §4.9's estimate_cost reads from.
type PricingCache struct {
	mu      sync.RWMutex
	entries map[string]PricingEntry
}

// NewPricingCache constructs an empty cache.
func NewPricingCache() *PricingCache {
	return &PricingCache{entries: map[string]PricingEntry{}}
}

func pricingKey(provider, model string) string {
	return strings.ToLower(provider) + "/" + strings.ToLower(model)
}

// Get returns the pricing entry for (provider, model), or NotFound if the
// chain has never populated one.
func (c *PricingCache) Get(provider, model string) (PricingEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pricingKey(provider, model)]
	if !ok {
		return PricingEntry{}, errs.NotFound("pricing entry for " + provider + "/" + model)
	}
	return entry, nil
}

// Set atomically replaces the entry for (provider, model); readers always
// see a fully-populated entry, never a partial write.
func (c *PricingCache) Set(entry PricingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pricingKey(entry.Provider, entry.Model)] = entry
}
