// Package workflow implements the compiled Workflow record and its fluent
// builder (C6), grounded in mbflow's internal/domain.Workflow aggregate
// root (internal/domain/workflow.go: cycle detection via DFS + recursion
// stack, uniqueness checks) and mbflow's pkg/workflow.DefinitionBuilder
// fluent chain (builder.go), generalized from untyped string node IDs to
// the typed NodeId[T] handles C5 introduces.
package workflow

import (
	"sort"
	"time"

	"github.com/flowcore/flowcore/internal/breaker"
	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/retry"
)

// defaultNodeTimeout is applied to a node with no explicit timeout metadata.
const defaultNodeTimeout = 30 * time.Second

// EdgeKind is one of the three edge variants a compiled Workflow may hold.
type EdgeKind int

const (
	Sequential EdgeKind = iota
	Conditional
	Parallel
)

// JoinStrategy governs how a Parallel edge's branches are awaited.
type JoinStrategy int

const (
	WaitAll JoinStrategy = iota
	WaitAny
)

// Branch is one arm of a Conditional edge: To fires when Predicate
// evaluates true. The default target of a Conditional edge is held in
// Edge.Default, not as a Branch.
type Branch struct {
	To        string
	Predicate string
}

// Edge is one outgoing connection from a node. Exactly the fields for Kind
// are meaningful; the others are zero.
type Edge struct {
	Kind EdgeKind
	From string

	// Sequential
	To string

	// Conditional
	Branches []Branch
	Default  string // node name, empty if none

	// Parallel
	Targets []string
	Join    JoinStrategy
}

// NodeMetadata carries per-node execution policy.
type NodeMetadata struct {
	Timeout         time.Duration
	RetryPolicy     retry.Policy
	BreakerKey      string
	BreakerConfig   breaker.Config
	ContinueOnError bool
}

// Workflow is the immutable, validated DAG produced by Builder.Build.
type Workflow struct {
	name         string
	nodes        map[string]struct{}
	start        string
	edges        []Edge
	nodeMetadata map[string]NodeMetadata
	validated    bool
}

func (w *Workflow) Name() string    { return w.name }
func (w *Workflow) Start() string   { return w.start }
func (w *Workflow) Edges() []Edge   { return append([]Edge{}, w.edges...) }
func (w *Workflow) Validated() bool { return w.validated }

// Nodes returns the declared node names in sorted order.
func (w *Workflow) Nodes() []string {
	out := make([]string, 0, len(w.nodes))
	for n := range w.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Metadata returns the configured metadata for a node, or the zero value
// (30s timeout, no retry, no breaker) if none was set.
func (w *Workflow) Metadata(name string) NodeMetadata {
	if m, ok := w.nodeMetadata[name]; ok {
		return m
	}
	return NodeMetadata{Timeout: defaultNodeTimeout}
}

// OutgoingEdges returns the edges leaving name, in declaration order.
func (w *Workflow) OutgoingEdges(name string) []Edge {
	var out []Edge
	for _, e := range w.edges {
		if e.From == name {
			out = append(out, e)
		}
	}
	return out
}

var errEmptyWorkflowName = errs.Configuration("workflow name cannot be empty")

// targetsOf returns every node name an edge points at.
func targetsOf(e Edge) []string {
	switch e.Kind {
	case Sequential:
		return []string{e.To}
	case Conditional:
		out := make([]string, 0, len(e.Branches)+1)
		for _, b := range e.Branches {
			out = append(out, b.To)
		}
		if e.Default != "" {
			out = append(out, e.Default)
		}
		return out
	case Parallel:
		return append([]string{}, e.Targets...)
	default:
		return nil
	}
}
