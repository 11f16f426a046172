package errs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/errs"
)

func TestWithContext_PreservesOrderAndDoesNotMutateReceiver(t *testing.T) {
	base := errs.NotFound("template")
	withOne := base.WithContext("node_id", "greet")
	withTwo := withOne.WithContext("workflow_id", "greeting-demo")

	assert.Empty(t, base.Frames())
	require.Len(t, withOne.Frames(), 1)
	require.Len(t, withTwo.Frames(), 2)
	assert.Equal(t, "node_id", withTwo.Frames()[0].Key)
	assert.Equal(t, "workflow_id", withTwo.Frames()[1].Key)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", errs.TimeoutErr("render", time.Second), true},
		{"external_service", errs.ExternalService(503, "upstream down"), true},
		{"rate_limited", errs.RateLimited(time.Second), true},
		{"circuit_open", errs.CircuitOpen("openai"), true},
		{"validation", errs.Validation("bad input", nil), false},
		{"not_found", errs.NotFound("x"), false},
		{"plain_error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errs.IsRetryable(tc.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	kind, ok := errs.KindOf(errs.Configuration("no node registered"))
	require.True(t, ok)
	assert.Equal(t, errs.KindConfiguration, kind)

	_, ok = errs.KindOf(errors.New("not ours"))
	assert.False(t, ok)
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, errs.SeverityCritical, errs.SeverityOf(errs.Internal(errors.New("disk full"))))
	assert.Equal(t, errs.SeverityWarning, errs.SeverityOf(errs.NotFound("x")))
	assert.Equal(t, errs.SeverityError, errs.SeverityOf(errors.New("unknown")))
}

func TestWrapUnwrapsToCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := errs.Serialization("encoding usage entry", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestTokenBudgetExceededFields(t *testing.T) {
	err := errs.TokenBudgetExceeded("per_day_cost", 50.0, 52.5)
	dim, ok := err.Field("dimension")
	require.True(t, ok)
	assert.Equal(t, "per_day_cost", dim)
	assert.Contains(t, err.Error(), "token_budget_exceeded")
}
