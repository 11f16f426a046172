package workflow

import (
	"sort"

	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/node"
)

// Builder assembles a compiled Workflow through a fluent chain of calls,
// generalizing mbflow's pkg/workflow.DefinitionBuilder chaining style from
// untyped string IDs to the typed NodeId[T] handles C5 introduces.
type Builder struct {
	name     string
	start    string
	current  string
	edges    []Edge
	nodeMeta map[string]NodeMetadata
	declared map[string]bool
	err      error
}

// New begins a Builder for a workflow named name.
func New(name string) *Builder {
	b := &Builder{
		nodeMeta: map[string]NodeMetadata{},
		declared: map[string]bool{},
	}
	if name == "" {
		b.err = errEmptyWorkflowName
	}
	b.name = name
	return b
}

// StartWith declares id as the entry node.
func StartWith[T any](b *Builder, id node.NodeId[T]) *Builder {
	return b.StartWithName(id.Name())
}

// StartWithName is the untyped form of StartWith, used by the data-driven
// Definition loader which has only string node names.
func (b *Builder) StartWithName(name string) *Builder {
	if b.err != nil {
		return b
	}
	if b.start != "" {
		b.err = errs.Configuration("workflow already has a start node")
		return b
	}
	b.declare(name)
	b.start = name
	b.current = name
	return b
}

// Then appends a Sequential edge from the most recently referenced node to
// id, and makes id current.
func Then[T any](b *Builder, id node.NodeId[T]) *Builder {
	return b.ThenName(id.Name())
}

// ThenName is the untyped form of Then.
func (b *Builder) ThenName(name string) *Builder {
	if b.err != nil {
		return b
	}
	if b.current == "" {
		b.err = errs.Configuration("then() called before start_with()")
		return b
	}
	for _, e := range b.edges {
		if e.Kind == Sequential && e.From == b.current {
			b.err = errs.Configuration("duplicate outgoing sequential edge from " + b.current)
			return b
		}
	}
	b.declare(name)
	b.edges = append(b.edges, Edge{Kind: Sequential, From: b.current, To: name})
	b.current = name
	return b
}

// Branch adds a Conditional edge from the named source node. Branches are
// evaluated in order; the first predicate returning true fires.
func (b *Builder) Branch(from string, branches []Branch, defaultTo string) *Builder {
	if b.err != nil {
		return b
	}
	b.declare(from)
	for _, br := range branches {
		b.declare(br.To)
	}
	if defaultTo != "" {
		b.declare(defaultTo)
	}
	b.edges = append(b.edges, Edge{Kind: Conditional, From: from, Branches: branches, Default: defaultTo})
	b.current = from
	return b
}

// Parallel adds a Parallel edge from the named source node, fanning out to
// targets and joining per strategy.
func (b *Builder) Parallel(from string, targets []string, join JoinStrategy) *Builder {
	if b.err != nil {
		return b
	}
	b.declare(from)
	for _, t := range targets {
		b.declare(t)
	}
	b.edges = append(b.edges, Edge{Kind: Parallel, From: from, Targets: targets, Join: join})
	b.current = from
	return b
}

// WithMetadata attaches per-node execution policy (timeout, retry policy,
// breaker key, continue-on-error).
func (b *Builder) WithMetadata(name string, meta NodeMetadata) *Builder {
	if b.err != nil {
		return b
	}
	b.declare(name)
	b.nodeMeta[name] = meta
	return b
}

func (b *Builder) declare(name string) {
	if name == "" {
		b.err = errs.Configuration("node name cannot be empty")
		return
	}
	b.declared[name] = true
}

// Build validates and returns the compiled Workflow. Validation failure is
// fatal: no partial workflow is returned.
func (b *Builder) Build() (*Workflow, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.start == "" {
		return nil, errs.Configuration("workflow has no start node")
	}

	nodes := make(map[string]struct{}, len(b.declared))
	for n := range b.declared {
		nodes[n] = struct{}{}
	}

	w := &Workflow{
		name:         b.name,
		nodes:        nodes,
		start:        b.start,
		edges:        append([]Edge{}, b.edges...),
		nodeMetadata: b.nodeMeta,
	}

	if err := validateWorkflow(w); err != nil {
		return nil, err
	}
	w.validated = true
	return w, nil
}

// validateWorkflow runs the build-time checks from spec §4.6, in order:
// undeclared edge targets, cycles, reachability, conditional totality.
func validateWorkflow(w *Workflow) error {
	for _, e := range w.edges {
		for _, t := range targetsOf(e) {
			if _, ok := w.nodes[t]; !ok {
				return errs.Validation("edge targets undeclared node", map[string]any{"node": t})
			}
		}
	}

	if cyc := findCycle(w); len(cyc) > 0 {
		return errs.Validation("workflow graph contains a cycle", map[string]any{"cycle": cyc})
	}

	if unreachable := findUnreachable(w); len(unreachable) > 0 {
		sort.Strings(unreachable)
		return errs.Validation("unreachable nodes", map[string]any{"unreachable": unreachable})
	}

	for _, e := range w.edges {
		if e.Kind != Conditional {
			continue
		}
		if len(e.Branches) == 0 && e.Default == "" {
			return errs.Configuration("conditional edge from " + e.From + " has no branches and no default")
		}
	}

	return nil
}

func findCycle(w *Workflow) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, e := range w.OutgoingEdges(n) {
			for _, t := range targetsOf(e) {
				switch color[t] {
				case white:
					if visit(t) {
						return true
					}
				case gray:
					for i, s := range stack {
						if s == t {
							cycle = append(append([]string{}, stack[i:]...), t)
							return true
						}
					}
					cycle = []string{t}
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	for _, n := range w.Nodes() {
		if color[n] == white {
			if visit(n) {
				return cycle
			}
		}
	}
	return nil
}

func findUnreachable(w *Workflow) []string {
	visited := map[string]bool{w.start: true}
	queue := []string{w.start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range w.OutgoingEdges(n) {
			for _, t := range targetsOf(e) {
				if !visited[t] {
					visited[t] = true
					queue = append(queue, t)
				}
			}
		}
	}
	var unreachable []string
	for n := range w.nodes {
		if !visited[n] {
			unreachable = append(unreachable, n)
		}
	}
	return unreachable
}
