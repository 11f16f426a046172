package pricingchain

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/tokens"
)

// OpenAIPricingSource is a Live implementation backed by a real go-openai
// client. go-openai exposes no pricing endpoint, so FetchPricing cannot
// read a rate from OpenAI itself; instead it calls ListModels to confirm
// the caller's key can actually reach the requested model, then resolves
// the rate from rates, a small locally-maintained table. A model absent
// from the account's model list (wrong key, no access, decommissioned
// model) reports an error rather than a guessed price.
type OpenAIPricingSource struct {
	client *openai.Client
	rates  map[string]tokens.PricingEntry
}

// NewOpenAIPricingSource builds a source backed by an authenticated
// go-openai client. rates maps "model" (lowercase) to the PricingEntry to
// report once the model is confirmed reachable; callers typically pass
// DefaultOpenAIRates().
func NewOpenAIPricingSource(apiKey string, rates map[string]tokens.PricingEntry) *OpenAIPricingSource {
	return &OpenAIPricingSource{client: openai.NewClient(apiKey), rates: rates}
}

// DefaultOpenAIRates returns a rate table for OpenAIPricingSource,
// mirroring the OpenAI rows of fallback_table.json. NewOpenAIPricingSource
// uses only the table it is given and does not substitute this one.
func DefaultOpenAIRates() map[string]tokens.PricingEntry {
	return map[string]tokens.PricingEntry{
		"gpt-4o":        {Provider: "openai", Model: "gpt-4o", InputPer1K: decimal.RequireFromString("0.0050"), OutputPer1K: decimal.RequireFromString("0.0150"), Currency: tokens.DefaultCurrency},
		"gpt-4o-mini":   {Provider: "openai", Model: "gpt-4o-mini", InputPer1K: decimal.RequireFromString("0.0006"), OutputPer1K: decimal.RequireFromString("0.0024"), Currency: tokens.DefaultCurrency},
		"gpt-4-turbo":   {Provider: "openai", Model: "gpt-4-turbo", InputPer1K: decimal.RequireFromString("0.0100"), OutputPer1K: decimal.RequireFromString("0.0300"), Currency: tokens.DefaultCurrency},
		"gpt-3.5-turbo": {Provider: "openai", Model: "gpt-3.5-turbo", InputPer1K: decimal.RequireFromString("0.0005"), OutputPer1K: decimal.RequireFromString("0.0015"), Currency: tokens.DefaultCurrency},
	}
}

func (s *OpenAIPricingSource) FetchPricing(ctx context.Context, provider, model string) (tokens.PricingEntry, error) {
	if s.client == nil {
		return tokens.PricingEntry{}, errs.Configuration("openai pricing source has no client")
	}
	if !strings.EqualFold(provider, "openai") {
		return tokens.PricingEntry{}, errs.NotFound("openai pricing source does not serve provider " + provider)
	}

	rate, known := s.rates[strings.ToLower(model)]
	if !known {
		return tokens.PricingEntry{}, errs.NotFound("openai pricing source has no rate for model " + model)
	}

	models, err := s.client.ListModels(ctx)
	if err != nil {
		return tokens.PricingEntry{}, errs.ExternalService(0, "listing openai models: "+err.Error())
	}
	for _, m := range models.Models {
		if strings.EqualFold(m.ID, model) {
			return rate, nil
		}
	}
	return tokens.PricingEntry{}, errs.NotFound("openai account cannot reach model " + model)
}
