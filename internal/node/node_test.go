package node_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/node"
	"github.com/flowcore/flowcore/internal/taskctx"
)

func TestNodeId_NameRoundTrips(t *testing.T) {
	type marker struct{}
	id := node.NewNodeId[marker]("greet")
	assert.Equal(t, "greet", id.Name())
}

func TestSyncFunc_AdaptsPlainFunction(t *testing.T) {
	fn := node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
		_ = tc.SetNode("touched", true)
		return tc, nil
	})
	tc := taskctx.New("wf", nil)
	out, err := fn.Process(tc)
	require.NoError(t, err)
	assert.True(t, out.HasNode("touched"))
}

func TestAsyncFunc_AdaptsPlainFunction(t *testing.T) {
	fn := node.AsyncFunc(func(ctx context.Context, tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
		_ = tc.SetNode("touched", true)
		return tc, nil
	})
	tc := taskctx.New("wf", nil)
	out, err := fn.ProcessAsync(context.Background(), tc)
	require.NoError(t, err)
	assert.True(t, out.HasNode("touched"))
}

func TestRegistry_RegisterIsIdempotentOnSamePointer(t *testing.T) {
	reg := node.NewRegistry()
	impl := node.NewSync("greet", "renders a greeting", node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
		return tc, nil
	}))

	require.NoError(t, reg.Register(impl))
	require.NoError(t, reg.Register(impl), "re-registering the identical pointer is a no-op")

	got, ok := reg.Get("greet")
	require.True(t, ok)
	assert.Same(t, impl, got)
}

func TestRegistry_RejectsConflictingRegistration(t *testing.T) {
	reg := node.NewRegistry()
	first := node.NewSync("greet", "v1", node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
		return tc, nil
	}))
	second := node.NewSync("greet", "v2", node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
		return tc, nil
	}))

	require.NoError(t, reg.Register(first))
	err := reg.Register(second)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConfiguration, kind)
}

func TestRegistry_MustGetFailsForUnknownName(t *testing.T) {
	reg := node.NewRegistry()
	_, err := reg.MustGet("missing")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConfiguration, kind)
}

func TestRegistry_ListAllReturnsEveryRegisteredImplementation(t *testing.T) {
	reg := node.NewRegistry()
	a := node.NewSync("a", "", node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) { return tc, nil }))
	b := node.NewSync("b", "", node.SyncFunc(func(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) { return tc, nil }))
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	all := reg.ListAll()
	assert.Len(t, all, 2)
}
