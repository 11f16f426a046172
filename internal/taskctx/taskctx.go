// Package taskctx implements TaskContext, the mutable, single-owner value
// threaded through a workflow execution. It generalizes mbflow's
// domain.ExecutionContext/domain.VariableSet (internal/domain/variables.go)
// into a typed get/set surface, including deep-clone snapshotting for
// parallel branches.
package taskctx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowcore/flowcore/internal/errs"
)

// Status is the terminal (or running) state of a context.
type Status int

const (
	Running Status = iota
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var reservedMetadataKeys = map[string]struct{}{
	"node_id":   {},
	"attempt":   {},
	"timestamp": {},
}

// TaskContext flows through every node in an execution.
type TaskContext struct {
	WorkflowID string
	Input      any
	CreatedAt  time.Time

	nodes    map[string]any
	metadata map[string]any
	status   Status
	finalErr error
}

// New constructs a fresh, Running TaskContext for workflowID carrying input.
func New(workflowID string, input any) *TaskContext {
	return &TaskContext{
		WorkflowID: workflowID,
		Input:      input,
		CreatedAt:  time.Now(),
		nodes:      map[string]any{},
		metadata:   map[string]any{},
		status:     Running,
	}
}

// Status returns the current terminal (or running) status.
func (c *TaskContext) Status() Status { return c.status }

// FinalError returns the error the context was finalized with, if any.
func (c *TaskContext) FinalError() error { return c.finalErr }

// GetInput deserializes Input into a value of type T via a JSON round trip,
// which is adequate for the JSON-like value domain TaskContext carries and
// avoids requiring Input to already be the concrete target type.
func GetInput[T any](c *TaskContext) (T, error) {
	var zero T
	return decodeAs[T](c.Input, zero)
}

// GetNode deserializes the last value stored under name.
func GetNode[T any](c *TaskContext, name string) (T, error) {
	var zero T
	v, ok := c.nodes[name]
	if !ok {
		return zero, errs.NotFound("node " + name)
	}
	return decodeAs[T](v, zero)
}

func decodeAs[T any](v any, zero T) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return zero, errs.Deserialization("cannot re-encode value for conversion", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, errs.Deserialization("value is not convertible to the requested type", err)
	}
	return out, nil
}

// SetNode stores value under name, overwriting any previous value.
func (c *TaskContext) SetNode(name string, value any) error {
	if c.status != Running {
		return errs.InvalidInput("context is not running")
	}
	c.nodes[name] = value
	return nil
}

// GetNodeRaw returns the raw stored value for name without conversion.
func (c *TaskContext) GetNodeRaw(name string) (any, bool) {
	v, ok := c.nodes[name]
	return v, ok
}

// HasNode reports whether name has a recorded value.
func (c *TaskContext) HasNode(name string) bool {
	_, ok := c.nodes[name]
	return ok
}

// NodeNames returns the names of all nodes that have written a value.
func (c *TaskContext) NodeNames() []string {
	out := make([]string, 0, len(c.nodes))
	for k := range c.nodes {
		out = append(out, k)
	}
	return out
}

// SetMetadata records an application-defined diagnostic value. Reserved
// keys (node_id, attempt, timestamp) are rejected.
func (c *TaskContext) SetMetadata(key string, value any) error {
	if c.status != Running {
		return errs.InvalidInput("context is not running")
	}
	if _, reserved := reservedMetadataKeys[key]; reserved {
		return errs.InvalidInput(key)
	}
	c.metadata[key] = value
	return nil
}

// GetMetadata retrieves a previously set metadata value.
func (c *TaskContext) GetMetadata(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// Finalize seals the context with a terminal status. Further mutations
// (SetNode/SetMetadata) fail with InvalidInput.
func (c *TaskContext) Finalize(status Status, cause error) error {
	if c.status != Running {
		return errs.InvalidInput("context already finalized")
	}
	if status == Running {
		return errs.InvalidInput("status")
	}
	c.status = status
	c.finalErr = cause
	return nil
}

// Snapshot returns a deep clone of c for a parallel branch, via a
// msgpack encode/decode round trip. This guarantees an independent copy of
// arbitrary JSON-like values without hand-writing a recursive copier for
// maps, slices, and scalars.
func (c *TaskContext) Snapshot() (*TaskContext, error) {
	raw, err := msgpack.Marshal(c.nodes)
	if err != nil {
		return nil, errs.Internal(err)
	}
	var nodesCopy map[string]any
	if err := msgpack.Unmarshal(raw, &nodesCopy); err != nil {
		return nil, errs.Internal(err)
	}
	metaRaw, err := msgpack.Marshal(c.metadata)
	if err != nil {
		return nil, errs.Internal(err)
	}
	var metaCopy map[string]any
	if err := msgpack.Unmarshal(metaRaw, &metaCopy); err != nil {
		return nil, errs.Internal(err)
	}
	if nodesCopy == nil {
		nodesCopy = map[string]any{}
	}
	if metaCopy == nil {
		metaCopy = map[string]any{}
	}
	return &TaskContext{
		WorkflowID: c.WorkflowID,
		Input:      c.Input,
		CreatedAt:  c.CreatedAt,
		nodes:      nodesCopy,
		metadata:   metaCopy,
		status:     Running,
	}, nil
}

// MergeFrom merges another context's node writes into c under the
// "lexicographically-first branch wins the bare name" rule: for each name
// written in other, if c does not already hold that name (from an
// earlier-merged branch), it is copied under the bare name; otherwise it is
// recorded under "<name>@<branchIndex>".
func (c *TaskContext) MergeFrom(other *TaskContext, branchIndex int) {
	for name, value := range other.nodes {
		if !c.HasNode(name) {
			c.nodes[name] = value
			continue
		}
		c.nodes[qualifiedName(name, branchIndex)] = value
	}
}

func qualifiedName(name string, branchIndex int) string {
	return name + "@" + strconv.Itoa(branchIndex)
}
