package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/errs"
)

func TestParse_LiteralAndVariable(t *testing.T) {
	nodes, err := parse("Hello, {{name}}!")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, literalNode{text: "Hello, "}, nodes[0])
	assert.Equal(t, varNode{path: "name"}, nodes[1])
	assert.Equal(t, literalNode{text: "!"}, nodes[2])
}

func TestParse_HelperCallWithLiteralAndPathArgs(t *testing.T) {
	nodes, err := parse(`{{join items ", "}}`)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	h, ok := nodes[0].(helperNode)
	require.True(t, ok)
	assert.Equal(t, "join", h.name)
	require.Len(t, h.args, 2)
	assert.Equal(t, "items", h.args[0].path)
	assert.True(t, h.args[1].isLiteral)
	assert.Equal(t, ", ", h.args[1].literal)
}

func TestParse_EachBlockNestsBody(t *testing.T) {
	nodes, err := parse("{{#each items}}-{{this}}{{/each}}")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	each, ok := nodes[0].(eachNode)
	require.True(t, ok)
	assert.Equal(t, "items", each.listPath)
	require.Len(t, each.body, 2)
}

func TestParse_IfElseBlock(t *testing.T) {
	nodes, err := parse("{{#if vip}}VIP{{else}}regular{{/if}}")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	ifn, ok := nodes[0].(ifNode)
	require.True(t, ok)
	assert.Equal(t, "vip", ifn.cond)
	require.Len(t, ifn.then, 1)
	require.Len(t, ifn.els, 1)
}

func TestParse_UnterminatedTagReportsLineAndColumn(t *testing.T) {
	_, err := parse("line one\n{{oops")
	require.Error(t, err)
	var fe *errs.Error
	require.ErrorAs(t, err, &fe)
	line, _ := fe.Field("line")
	col, _ := fe.Field("column")
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)
}

func TestParse_UnterminatedEachBlockIsAnError(t *testing.T) {
	_, err := parse("{{#each items}}no closer")
	require.Error(t, err)
}

func TestParse_UnexpectedClosingTagIsAnError(t *testing.T) {
	_, err := parse("stray {{/if}}")
	require.Error(t, err)
}

func TestParseArg_DistinguishesLiteralKinds(t *testing.T) {
	assert.Equal(t, argExpr{isLiteral: true, literal: "text"}, parseArg(`"text"`))
	assert.Equal(t, argExpr{isLiteral: true, literal: 3.5}, parseArg("3.5"))
	assert.Equal(t, argExpr{isLiteral: true, literal: true}, parseArg("true"))
	assert.Equal(t, argExpr{path: "some.path"}, parseArg("some.path"))
}
