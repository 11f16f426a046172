package pricingchain_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/pricingchain"
	"github.com/flowcore/flowcore/internal/retry"
	"github.com/flowcore/flowcore/internal/tokens"
)

type fakeLive struct {
	entry tokens.PricingEntry
	err   error
	calls int32
}

func (f *fakeLive) FetchPricing(ctx context.Context, provider, model string) (tokens.PricingEntry, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return tokens.PricingEntry{}, f.err
	}
	return f.entry, nil
}

func TestResolve_PrefersLiveWhenItSucceeds(t *testing.T) {
	live := &fakeLive{entry: tokens.PricingEntry{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: decimal.RequireFromString("9.9999")}}
	c, err := pricingchain.New(pricingchain.Config{Live: live, RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)
	defer c.Close()

	entry, err := c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, tokens.SourceLive, entry.Source)
	assert.True(t, decimal.RequireFromString("9.9999").Equal(entry.InputPer1K))
}

func TestResolve_FallsBackToFallbackTableWhenLiveAndCacheMiss(t *testing.T) {
	c, err := pricingchain.New(pricingchain.Config{RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)
	defer c.Close()

	entry, err := c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, tokens.SourceFallback, entry.Source)
	assert.Equal(t, tokens.DefaultCurrency, entry.Currency)
	assert.True(t, decimal.RequireFromString("0.0006").Equal(entry.InputPer1K))
}

func TestResolve_UnknownPairWithNoLiveAndNoFallbackRowIsNotFound(t *testing.T) {
	c, err := pricingchain.New(pricingchain.Config{RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Resolve(context.Background(), "mystery", "v1")
	require.Error(t, err)
}

func TestResolve_ServesFreshCacheWhenLiveFails(t *testing.T) {
	live := &fakeLive{entry: tokens.PricingEntry{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: decimal.RequireFromString("1.2345")}}
	fake := clock.NewFake(time.Unix(0, 0))
	c, err := pricingchain.New(pricingchain.Config{Live: live, Clock: fake, CacheTTL: time.Hour, RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)

	live.err = errors.New("live is down now")
	entry, err := c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.2345").Equal(entry.InputPer1K), "still serving the cached live value")
	assert.Equal(t, tokens.SourceCached, entry.Source, "served from cache, not a fresh live fetch")
	assert.Equal(t, int32(2), atomic.LoadInt32(&live.calls))
}

func TestResolve_FallsThroughToFallbackOnceCacheExpires(t *testing.T) {
	live := &fakeLive{entry: tokens.PricingEntry{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: decimal.RequireFromString("1.2345")}}
	fake := clock.NewFake(time.Unix(0, 0))
	c, err := pricingchain.New(pricingchain.Config{Live: live, Clock: fake, CacheTTL: time.Minute, RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)

	live.err = errors.New("live is down now")
	fake.Advance(2 * time.Minute)

	entry, err := c.Resolve(context.Background(), "openai", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, tokens.SourceFallback, entry.Source)
	assert.True(t, decimal.RequireFromString("0.0006").Equal(entry.InputPer1K), "expired cache falls back to the hardcoded table")
}

func TestStartRefresh_PeriodicallyResolvesKnownPairs(t *testing.T) {
	live := &fakeLive{entry: tokens.PricingEntry{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: decimal.RequireFromString("1")}}
	c, err := pricingchain.New(pricingchain.Config{Live: live, RefreshInterval: 5 * time.Millisecond, RetryPolicy: retry.NonePolicy{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	c.StartRefresh(ctx, func() [][2]string { return [][2]string{{"openai", "gpt-4o-mini"}} })

	deadline := time.After(200 * time.Millisecond)
	for atomic.LoadInt32(&live.calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("refresh loop never invoked the live source")
		case <-time.After(5 * time.Millisecond):
		}
	}
	once.Do(cancel)
	c.Close()
}

