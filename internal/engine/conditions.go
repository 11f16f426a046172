package engine

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/taskctx"
	"github.com/flowcore/flowcore/pkg/workflow"
)

// compiledCache memoizes compiled predicate programs by source text,
// grounded in mbflow's executor/conditions.go ConditionEvaluator cache,
// collapsed to a single package-level cache since predicates are
// evaluated against a uniform env shape (nodes/input/metadata) rather
// than the per-workflow variable sets mbflow's evaluator handles.
var compiledCache sync.Map // map[string]*vm.Program

func compilePredicate(source string) (*vm.Program, error) {
	if cached, ok := compiledCache.Load(source); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errs.Validation("invalid predicate expression", map[string]any{"expression": source, "cause": err.Error()})
	}
	compiledCache.Store(source, program)
	return program, nil
}

func predicateEnv(tc *taskctx.TaskContext) map[string]any {
	nodes := map[string]any{}
	for _, n := range tc.NodeNames() {
		if v, ok := tc.GetNodeRaw(n); ok {
			nodes[n] = v
		}
	}
	return map[string]any{
		"nodes": nodes,
		"input": tc.Input,
	}
}

// evaluateConditional evaluates edge's branches left-to-right, returning
// the first node whose predicate is true, or the default branch if none
// match. An evaluation error (e.g. referencing a field not yet written) is
// treated as false, matching mbflow's handleEvaluationError convention. A
// Conditional edge with no true predicate and no default is a runtime
// Validation error rather than a silent no-op.
func evaluateConditional(tc *taskctx.TaskContext, edge workflow.Edge) (string, error) {
	env := predicateEnv(tc)
	for _, branch := range edge.Branches {
		program, err := compilePredicate(branch.Predicate)
		if err != nil {
			return "", err
		}
		result, err := expr.Run(program, env)
		if err != nil {
			continue // treat evaluation errors as "false"
		}
		if truthy(result) {
			return branch.To, nil
		}
	}
	if edge.Default != "" {
		return edge.Default, nil
	}
	return "", errs.Validation("no conditional branch matched and no default is declared", map[string]any{"from": edge.From})
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
