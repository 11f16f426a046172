// Package node defines the node abstraction: typed identifiers and the
// sync/async process contracts, generalizing mbflow's untyped
// internal/node.Node interface (ID/Name/Version/Execute/Validate/Schema)
// into typed NodeId[T] handles so that typed edges can enforce I/O
// compatibility at the graph level.
package node

import (
	"context"

	"github.com/flowcore/flowcore/internal/taskctx"
)

// NodeId is a typed handle: a stable string name plus a phantom type
// parameter T identifying the node's implementation. Equality is by name
// only; T exists purely so the Go compiler can refuse to wire a typed edge
// between incompatible node implementations.
type NodeId[T any] struct {
	name string
}

// NewNodeId constructs a NodeId for the given stable name.
func NewNodeId[T any](name string) NodeId[T] {
	return NodeId[T]{name: name}
}

// Name returns the node's stable name.
func (n NodeId[T]) Name() string { return n.name }

// SyncNode processes a TaskContext without suspending. Implementations
// must not block on long-running I/O; use AsyncNode for that.
type SyncNode interface {
	Process(ctx *taskctx.TaskContext) (*taskctx.TaskContext, error)
}

// AsyncNode processes a TaskContext and may suspend at awaitable
// operations (the context.Context passed in carries cancellation).
type AsyncNode interface {
	ProcessAsync(ctx context.Context, tc *taskctx.TaskContext) (*taskctx.TaskContext, error)
}

// Node is the full contract a registry entry satisfies: a stable identity
// plus exactly one of the two process capabilities.
type Node interface {
	Name() string
	Description() string
}

// Implementation bundles the identity with whichever process capability
// the node supports. Exactly one of Sync/Async must be non-nil; the engine
// adapts Sync nodes onto its worker pool uniformly.
type Implementation struct {
	name        string
	description string
	Sync        SyncNode
	Async       AsyncNode
}

// NewSync builds a named, synchronous node implementation.
func NewSync(name, description string, fn SyncNode) *Implementation {
	return &Implementation{name: name, description: description, Sync: fn}
}

// NewAsync builds a named, asynchronous node implementation.
func NewAsync(name, description string, fn AsyncNode) *Implementation {
	return &Implementation{name: name, description: description, Async: fn}
}

func (i *Implementation) Name() string        { return i.name }
func (i *Implementation) Description() string { return i.description }

// SyncFunc adapts a plain function to SyncNode.
type SyncFunc func(ctx *taskctx.TaskContext) (*taskctx.TaskContext, error)

func (f SyncFunc) Process(ctx *taskctx.TaskContext) (*taskctx.TaskContext, error) { return f(ctx) }

// AsyncFunc adapts a plain function to AsyncNode.
type AsyncFunc func(ctx context.Context, tc *taskctx.TaskContext) (*taskctx.TaskContext, error)

func (f AsyncFunc) ProcessAsync(ctx context.Context, tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
	return f(ctx, tc)
}
