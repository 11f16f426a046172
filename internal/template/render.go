package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowcore/flowcore/internal/errs"
)

// scope resolves variable paths against a chain of maps, innermost first,
// so {{#each}}/{{#if}} bodies can see both their own bindings ("this",
// "@index") and the outer render data.
type scope struct {
	frames []map[string]any
}

func newScope(data map[string]any) *scope {
	return &scope{frames: []map[string]any{data}}
}

func (s *scope) push(frame map[string]any) *scope {
	frames := make([]map[string]any, 0, len(s.frames)+1)
	frames = append(frames, frame)
	frames = append(frames, s.frames...)
	return &scope{frames: frames}
}

func (s *scope) resolve(path string) (any, bool) {
	if path == "this" {
		if v, ok := s.frames[0]["this"]; ok {
			return v, true
		}
	}
	segments := strings.Split(path, ".")
	for _, frame := range s.frames {
		v, ok := frame[segments[0]]
		if !ok {
			continue
		}
		for _, seg := range segments[1:] {
			m, ok2 := v.(map[string]any)
			if !ok2 {
				return nil, false
			}
			v, ok2 = m[seg]
			if !ok2 {
				return nil, false
			}
		}
		return v, true
	}
	return nil, false
}

// render walks nodes against data using registered helpers.
func render(nodes []astNode, data map[string]any, helpers map[string]HelperFunc) (string, error) {
	var b strings.Builder
	if err := renderInto(&b, nodes, newScope(data), helpers); err != nil {
		return "", err
	}
	return b.String(), nil
}

func renderInto(b *strings.Builder, nodes []astNode, sc *scope, helpers map[string]HelperFunc) error {
	for _, n := range nodes {
		switch v := n.(type) {
		case literalNode:
			b.WriteString(v.text)
		case varNode:
			val, ok := sc.resolve(v.path)
			if !ok {
				return errs.InvalidInput(v.path)
			}
			b.WriteString(toString(val))
		case helperNode:
			fn, ok := helpers[v.name]
			if !ok {
				return errs.Configuration("unknown template helper: " + v.name)
			}
			args := make([]any, 0, len(v.args))
			for i, a := range v.args {
				if a.isLiteral {
					args = append(args, a.literal)
					continue
				}
				val, ok := sc.resolve(a.path)
				if !ok {
					if v.name == "default" && i == 0 {
						args = append(args, nil)
						continue
					}
					return errs.InvalidInput(a.path)
				}
				args = append(args, val)
			}
			out, err := fn(args...)
			if err != nil {
				return errs.Validation("helper "+v.name+" failed", map[string]any{"cause": err.Error()})
			}
			b.WriteString(toString(out))
		case eachNode:
			val, ok := sc.resolve(v.listPath)
			if !ok {
				return errs.InvalidInput(v.listPath)
			}
			list, ok := val.([]any)
			if !ok {
				return errs.Validation("cannot iterate non-array value", map[string]any{"path": v.listPath})
			}
			for i, item := range list {
				child := sc.push(map[string]any{"this": item, "@index": i})
				if err := renderInto(b, v.body, child, helpers); err != nil {
					return err
				}
			}
		case ifNode:
			val, _ := sc.resolve(v.cond)
			body := v.els
			if truthyTemplate(val) {
				body = v.then
			}
			if err := renderInto(b, body, sc, helpers); err != nil {
				return err
			}
		}
	}
	return nil
}

func truthyTemplate(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// collectVarPaths walks nodes to find every variable path referenced,
// separating paths that are guaranteed a fallback (the first argument to a
// "default" helper call) from paths that must be supplied, for validate().
func collectVarPaths(nodes []astNode, required, defaulted map[string]bool) {
	for _, n := range nodes {
		switch v := n.(type) {
		case varNode:
			required[v.path] = true
		case helperNode:
			for i, a := range v.args {
				if a.isLiteral {
					continue
				}
				if v.name == "default" && i == 0 {
					defaulted[a.path] = true
					continue
				}
				required[a.path] = true
			}
		case eachNode:
			required[v.listPath] = true
			collectVarPaths(v.body, required, defaulted)
		case ifNode:
			required[v.cond] = true
			collectVarPaths(v.then, required, defaulted)
			collectVarPaths(v.els, required, defaulted)
		}
	}
}
