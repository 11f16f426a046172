package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperFormatDate_ConvertsTokensToGoLayout(t *testing.T) {
	out, err := helperFormatDate("2026-08-01T15:04:05Z", "YYYY-MM-DD HH:mm:ss")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01 15:04:05", out)
}

func TestHelperFormatDate_RejectsNonRFC3339Input(t *testing.T) {
	_, err := helperFormatDate("not-a-date", "YYYY-MM-DD")
	require.Error(t, err)
}

func TestHelperUpperLower(t *testing.T) {
	out, err := helperUpper("shout")
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", out)

	out, err = helperLower("WHISPER")
	require.NoError(t, err)
	assert.Equal(t, "whisper", out)
}

func TestHelperJoin_ConcatenatesWithSeparator(t *testing.T) {
	out, err := helperJoin([]any{"a", "b", "c"}, "-")
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", out)
}

func TestHelperJoin_RejectsNonArrayFirstArgument(t *testing.T) {
	_, err := helperJoin("not-a-list", "-")
	require.Error(t, err)
}

func TestHelperDefault_FallsBackOnNilOrEmptyString(t *testing.T) {
	out, err := helperDefault(nil, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)

	out, err = helperDefault("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)

	out, err = helperDefault("present", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "present", out)
}

func TestHelperExpr_EvaluatesExpression(t *testing.T) {
	out, err := helperExpr("1 + 2")
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}

func TestSingleStringArg_RejectsWrongArity(t *testing.T) {
	_, err := singleStringArg("upper", []any{"a", "b"})
	require.Error(t, err)
}
