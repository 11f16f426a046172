package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/flowcore/internal/template"
)

func TestEngine_ParseAndRenderRoundTrip(t *testing.T) {
	eng := template.NewEngine(4)
	compiled, err := eng.Parse("Hello, {{upper name}}!")
	require.NoError(t, err)

	out, err := eng.Render(compiled, map[string]any{"name": "flowcore"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, FLOWCORE!", out)
}

func TestEngine_ParseCachesIdenticalSource(t *testing.T) {
	eng := template.NewEngine(4)
	a, err := eng.Parse("{{name}}")
	require.NoError(t, err)
	b, err := eng.Parse("{{name}}")
	require.NoError(t, err)
	assert.Same(t, a, b, "identical source text must hit the LRU cache")
}

func TestEngine_ParseRejectsMalformedTemplate(t *testing.T) {
	eng := template.NewEngine(4)
	_, err := eng.Parse("{{unterminated")
	require.Error(t, err)
}

func TestEngine_RegisterHelperAddsCustomFunction(t *testing.T) {
	eng := template.NewEngine(4)
	eng.RegisterHelper("shout", func(args ...any) (any, error) {
		s, _ := args[0].(string)
		return s + "!!!", nil
	})
	compiled, err := eng.Parse("{{shout word}}")
	require.NoError(t, err)
	out, err := eng.Render(compiled, map[string]any{"word": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!!!", out)
}

func TestValidate_PassesWhenAllRequiredVariablesAreDeclared(t *testing.T) {
	eng := template.NewEngine(4)
	compiled, err := eng.Parse("{{name}} {{default nickname \"buddy\"}}")
	require.NoError(t, err)

	err = template.Validate(compiled, map[string]bool{"name": true})
	require.NoError(t, err, "nickname is guarded by default and needs no declaration")
}

func TestValidate_FailsWhenARequiredVariableIsUndeclared(t *testing.T) {
	eng := template.NewEngine(4)
	compiled, err := eng.Parse("{{name}} {{missing}}")
	require.NoError(t, err)

	err = template.Validate(compiled, map[string]bool{"name": true})
	require.Error(t, err)
}
