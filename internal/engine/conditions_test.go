package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/taskctx"
	"github.com/flowcore/flowcore/pkg/workflow"
)

func TestEvaluateConditional_FirstMatchingBranchWins(t *testing.T) {
	tc := taskctx.New("wf-1", nil)
	require.NoError(t, tc.SetNode("classify", map[string]any{"urgent": true, "vip": true}))

	edge := workflow.Edge{
		Kind: workflow.Conditional,
		From: "classify",
		Branches: []workflow.Branch{
			{To: "escalate", Predicate: "nodes.classify.urgent == true"},
			{To: "concierge", Predicate: "nodes.classify.vip == true"},
		},
		Default: "close",
	}

	next, err := evaluateConditional(tc, edge)
	require.NoError(t, err)
	assert.Equal(t, "escalate", next)
}

func TestEvaluateConditional_FallsBackToDefault(t *testing.T) {
	tc := taskctx.New("wf-1", nil)
	require.NoError(t, tc.SetNode("classify", map[string]any{"urgent": false}))

	edge := workflow.Edge{
		Kind:     workflow.Conditional,
		From:     "classify",
		Branches: []workflow.Branch{{To: "escalate", Predicate: "nodes.classify.urgent == true"}},
		Default:  "close",
	}

	next, err := evaluateConditional(tc, edge)
	require.NoError(t, err)
	assert.Equal(t, "close", next)
}

func TestEvaluateConditional_NoMatchAndNoDefaultIsValidationError(t *testing.T) {
	tc := taskctx.New("wf-1", nil)
	edge := workflow.Edge{
		Kind:     workflow.Conditional,
		From:     "classify",
		Branches: []workflow.Branch{{To: "escalate", Predicate: "false"}},
	}

	_, err := evaluateConditional(tc, edge)
	require.Error(t, err)
}

func TestEvaluateConditional_UndefinedFieldReferenceIsTreatedAsFalse(t *testing.T) {
	tc := taskctx.New("wf-1", nil)
	edge := workflow.Edge{
		Kind:     workflow.Conditional,
		From:     "classify",
		Branches: []workflow.Branch{{To: "escalate", Predicate: "nodes.never_written.field == true"}},
		Default:  "close",
	}

	next, err := evaluateConditional(tc, edge)
	require.NoError(t, err)
	assert.Equal(t, "close", next)
}

func TestCompilePredicate_CachesBySourceText(t *testing.T) {
	p1, err := compilePredicate("1 == 1")
	require.NoError(t, err)
	p2, err := compilePredicate("1 == 1")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestCompilePredicate_RejectsInvalidSyntax(t *testing.T) {
	_, err := compilePredicate("this is not ( valid")
	require.Error(t, err)
}
