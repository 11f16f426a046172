// Package template implements the handlebars-like prompt template engine
// (C8): parse, validate, compile (with LRU-cached compilation keyed by
// source hash), and render with variable substitution, block helpers, and
// registered helper calls.
//
// Grounded in mbflow's executor/template.go TemplateProcessor for the
// overall two-pass parse-then-substitute idea and its built-in
// getNestedValue/evaluateExpression helpers, but replaces mbflow's
// regex-replace mechanism with a real recursive-descent parser producing
// an AST, since block helpers ({{#each}}, {{#if}}) need real nesting that
// string replacement cannot express correctly. No handlebars-family
// library appears anywhere in the retrieved example corpus, so this
// component is intentionally hand-rolled.
package template

// astNode is the AST node interface; all node kinds implement it as a marker.
type astNode interface{ isNode() }

type literalNode struct{ text string }

func (literalNode) isNode() {}

// varNode renders the value at Path (dot-separated) from the current
// render scope.
type varNode struct{ path string }

func (varNode) isNode() {}

// helperNode calls a registered helper with the given argument
// expressions, rendering its return value.
type helperNode struct {
	name string
	args []argExpr
}

func (helperNode) isNode() {}

// eachNode renders Body once per element of the list at ListPath, with
// "this" and "@index" bound in scope.
type eachNode struct {
	listPath string
	body     []astNode
}

func (eachNode) isNode() {}

// ifNode renders Then when Cond is truthy, else Else.
type ifNode struct {
	cond string
	then []astNode
	els  []astNode
}

func (ifNode) isNode() {}

// argExpr is one argument to a helper call: either a literal value or a
// variable path to resolve against the current scope.
type argExpr struct {
	literal   any
	isLiteral bool
	path      string
}
