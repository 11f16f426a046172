package template

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/flowcore/flowcore/internal/errs"
)

// HelperFunc is a pure value...->value function registered under a name
// and callable from a template as {{name arg...}}.
type HelperFunc func(args ...any) (any, error)

// builtinHelpers returns the standard set of named helpers plus "expr",
// which hands its argument to expr-lang/expr the way mbflow's
// TemplateProcessor.evaluateExpression composes ${...} sub-expressions
// into its own two-pass substitution.
func builtinHelpers() map[string]HelperFunc {
	return map[string]HelperFunc{
		"format_date": helperFormatDate,
		"upper":       helperUpper,
		"lower":       helperLower,
		"join":        helperJoin,
		"default":     helperDefault,
		"expr":        helperExpr,
	}
}

func helperFormatDate(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errs.Validation("format_date expects (rfc3339, format)", nil)
	}
	raw, ok := args[0].(string)
	if !ok {
		return nil, errs.Validation("format_date: first argument must be a string", nil)
	}
	layout, ok := args[1].(string)
	if !ok {
		return nil, errs.Validation("format_date: second argument must be a string", nil)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errs.Validation("format_date: not a valid RFC3339 timestamp", map[string]any{"value": raw})
	}
	return t.Format(goLayoutFromToken(layout)), nil
}

// goLayoutFromToken maps a small set of common strftime-ish tokens onto
// Go's reference-time layout, since spec authors write date formats the
// way most templating engines outside Go do.
func goLayoutFromToken(tok string) string {
	replacer := strings.NewReplacer(
		"YYYY", "2006", "MM", "01", "DD", "02",
		"HH", "15", "mm", "04", "ss", "05",
	)
	return replacer.Replace(tok)
}

func helperUpper(args ...any) (any, error) {
	s, err := singleStringArg("upper", args)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

func helperLower(args ...any) (any, error) {
	s, err := singleStringArg("lower", args)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func helperJoin(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errs.Validation("join expects (array, sep)", nil)
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, errs.Validation("join: first argument must be an array", nil)
	}
	sep, ok := args[1].(string)
	if !ok {
		return nil, errs.Validation("join: second argument must be a string", nil)
	}
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = toString(v)
	}
	return strings.Join(parts, sep), nil
}

func helperDefault(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, errs.Validation("default expects (value, fallback)", nil)
	}
	if args[0] == nil {
		return args[1], nil
	}
	if s, ok := args[0].(string); ok && s == "" {
		return args[1], nil
	}
	return args[0], nil
}

func helperExpr(args ...any) (any, error) {
	s, err := singleStringArg("expr", args)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(s, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, map[string]any{})
}

func singleStringArg(helper string, args []any) (string, error) {
	if len(args) != 1 {
		return "", errs.Validation(helper+" expects exactly one argument", nil)
	}
	s, ok := args[0].(string)
	if !ok {
		return "", errs.Validation(helper+": argument must be a string", nil)
	}
	return s, nil
}
