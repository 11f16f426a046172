package budget_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/budget"
	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/errs"
)

func TestCheck_PerRequestTokenLimitRejectsOversizedCall(t *testing.T) {
	m := budget.NewManager(budget.Limits{PerRequestTokens: 100}, clock.System{}, nil)
	err := m.Check("", 60, 60, decimal.Zero)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindTokenBudgetExceeded, kind)
}

func TestCheck_PerRequestWithinLimitPasses(t *testing.T) {
	m := budget.NewManager(budget.Limits{PerRequestTokens: 100}, clock.System{}, nil)
	require.NoError(t, m.Check("", 40, 40, decimal.Zero))
}

func TestCheck_PerSessionTokensAccumulateAcrossCalls(t *testing.T) {
	m := budget.NewManager(budget.Limits{PerSessionTokens: 100}, clock.System{}, nil)
	require.NoError(t, m.Check("sess-1", 50, 0, decimal.Zero))
	m.Record("sess-1", "openai", "gpt-4o-mini", 50, 0, decimal.Zero)

	err := m.Check("sess-1", 60, 0, decimal.Zero)
	require.Error(t, err)
}

func TestCheck_PerDayCostLimitRejectsOnceExceeded(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := budget.NewManager(budget.Limits{PerDayCost: decimal.RequireFromString("1.00")}, fake, time.UTC)

	require.NoError(t, m.Check("", 0, 0, decimal.RequireFromString("0.50")))
	m.Record("", "openai", "gpt-4o-mini", 0, 0, decimal.RequireFromString("0.50"))

	err := m.Check("", 0, 0, decimal.RequireFromString("0.60"))
	require.Error(t, err)
}

func TestCheck_DailyWindowRollsOverAtMidnightInLocation(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC))
	m := budget.NewManager(budget.Limits{PerDayCost: decimal.RequireFromString("1.00")}, fake, time.UTC)

	m.Record("", "openai", "gpt-4o-mini", 0, 0, decimal.RequireFromString("0.90"))
	require.Error(t, m.Check("", 0, 0, decimal.RequireFromString("0.20")))

	fake.Advance(2 * time.Hour) // crosses into 2026-01-02
	require.NoError(t, m.Check("", 0, 0, decimal.RequireFromString("0.20")), "new day resets the window")
}

func TestRecord_UpdatesRollupAnalytics(t *testing.T) {
	m := budget.NewManager(budget.Limits{}, clock.System{}, nil)
	m.Record("", "openai", "gpt-4o-mini", 100, 50, decimal.RequireFromString("0.01"))
	m.Record("", "OpenAI", "GPT-4o-Mini", 100, 50, decimal.RequireFromString("0.01"))

	r := m.Rollup("openai", "gpt-4o-mini")
	assert.Equal(t, int64(2), r.Calls)
	assert.Equal(t, int64(200), r.InputTokens)
	assert.Equal(t, int64(100), r.OutputTokens)
	assert.Equal(t, int64(20000), r.CostMicros)
}

func TestRollup_UnknownPairIsZeroValue(t *testing.T) {
	m := budget.NewManager(budget.Limits{}, clock.System{}, nil)
	r := m.Rollup("nobody", "nothing")
	assert.Zero(t, r.Calls)
}

func TestResetSession_ClearsAccumulatedTotals(t *testing.T) {
	m := budget.NewManager(budget.Limits{PerSessionTokens: 10}, clock.System{}, nil)
	m.Record("sess-1", "openai", "gpt-4o-mini", 10, 0, decimal.Zero)
	require.Error(t, m.Check("sess-1", 5, 0, decimal.Zero))

	m.ResetSession("sess-1")
	require.NoError(t, m.Check("sess-1", 5, 0, decimal.Zero))
}

func TestResetDay_ForcesFreshWindowWithoutAdvancingClock(t *testing.T) {
	m := budget.NewManager(budget.Limits{PerDayCost: decimal.RequireFromString("1.00")}, clock.System{}, nil)
	m.Record("", "openai", "gpt-4o-mini", 0, 0, decimal.RequireFromString("0.90"))
	require.Error(t, m.Check("", 0, 0, decimal.RequireFromString("0.20")))

	m.ResetDay()
	require.NoError(t, m.Check("", 0, 0, decimal.RequireFromString("0.20")))
}
