package workflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/pkg/workflow"
)

func TestLoadYAML_ParsesIntoDefinition(t *testing.T) {
	data := []byte(`
name: greeting-demo
version: "1"
nodes:
  - id: greet
    timeout: 5s
  - id: log-usage
edges:
  - from: greet
    to: log-usage
    type: sequential
`)
	def, err := workflow.LoadYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "greeting-demo", def.Name)
	assert.Len(t, def.Nodes, 2)
	assert.Len(t, def.Edges, 1)
}

func TestLoadYAML_RejectsMalformedYAML(t *testing.T) {
	_, err := workflow.LoadYAML([]byte("not: [valid: yaml"))
	require.Error(t, err)
}

func TestCompile_BuildsSequentialWorkflowFromDefinitionBuiltProgrammatically(t *testing.T) {
	def := workflow.NewDefinitionBuilder().
		Name("greeting-demo").
		Version("1").
		AddNode(workflow.NewNodeDefBuilder().ID("greet").Timeout("5s").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("log-usage").Build()).
		AddEdge(workflow.NewEdgeDefBuilder().From("greet").To("log-usage").Type("sequential").Build()).
		Build()

	wf, err := workflow.Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "greet", wf.Start())
	assert.Equal(t, 5*time.Second, wf.Metadata("greet").Timeout)

	edges := wf.OutgoingEdges("greet")
	require.Len(t, edges, 1)
	assert.Equal(t, "log-usage", edges[0].To)
}

func TestCompile_BuildsConditionalWorkflowWithDefaultBranch(t *testing.T) {
	def := workflow.NewDefinitionBuilder().
		Name("routing-demo").
		AddNode(workflow.NewNodeDefBuilder().ID("classify").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("escalate").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("close").Build()).
		AddEdge(workflow.NewEdgeDefBuilder().From("classify").To("escalate").Type("conditional").Condition("urgent").Build()).
		AddEdge(workflow.NewEdgeDefBuilder().From("classify").To("close").Type("conditional").Build()).
		Build()

	wf, err := workflow.Compile(def)
	require.NoError(t, err)

	edges := wf.OutgoingEdges("classify")
	require.Len(t, edges, 1)
	assert.Equal(t, workflow.Conditional, edges[0].Kind)
	assert.Equal(t, "close", edges[0].Default)
	require.Len(t, edges[0].Branches, 1)
	assert.Equal(t, "escalate", edges[0].Branches[0].To)
	assert.Equal(t, "urgent", edges[0].Branches[0].Predicate)
}

func TestCompile_BuildsParallelWorkflowWithWaitAnyJoin(t *testing.T) {
	def := workflow.NewDefinitionBuilder().
		Name("fanout-demo").
		AddNode(workflow.NewNodeDefBuilder().ID("start").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("left").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("right").Build()).
		AddEdge(workflow.NewEdgeDefBuilder().From("start").Type("parallel").Targets("left", "right").Join("wait_any").Build()).
		Build()

	wf, err := workflow.Compile(def)
	require.NoError(t, err)

	edges := wf.OutgoingEdges("start")
	require.Len(t, edges, 1)
	assert.Equal(t, workflow.WaitAny, edges[0].Join)
	assert.ElementsMatch(t, []string{"left", "right"}, edges[0].Targets)
}

func TestCompile_ParsesExponentialBackoffString(t *testing.T) {
	def := workflow.NewDefinitionBuilder().
		Name("retry-demo").
		AddNode(workflow.NewNodeDefBuilder().ID("call-provider").Retry(5, "exponential:100000000,2,30000000000,0.1").Build()).
		Build()

	wf, err := workflow.Compile(def)
	require.NoError(t, err)

	meta := wf.Metadata("call-provider")
	require.NotNil(t, meta.RetryPolicy)
}

func TestCompile_RejectsDefinitionWithNoNodes(t *testing.T) {
	def := workflow.NewDefinitionBuilder().Name("empty").Build()
	_, err := workflow.Compile(def)
	require.Error(t, err)
}

func TestCompile_RejectsUnknownEdgeType(t *testing.T) {
	def := workflow.NewDefinitionBuilder().
		Name("bad-edge").
		AddNode(workflow.NewNodeDefBuilder().ID("a").Build()).
		AddNode(workflow.NewNodeDefBuilder().ID("b").Build()).
		AddEdge(workflow.NewEdgeDefBuilder().From("a").To("b").Type("telepathic").Build()).
		Build()

	_, err := workflow.Compile(def)
	require.Error(t, err)
}
