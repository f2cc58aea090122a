package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

func TestToolsFromSpecsConvertsSchema(t *testing.T) {
	specs := []tools.Spec{
		{
			Name:        "get_profile",
			Description: "Fetch a profile",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"username": map[string]any{"type": "string"},
				},
				"required": []string{"username"},
			},
		},
	}

	out := ToolsFromSpecs(specs)
	require.Len(t, out, 1)
	require.Len(t, out[0].FunctionDeclarations, 1)

	decl := out[0].FunctionDeclarations[0]
	assert.Equal(t, "get_profile", decl.Name)
	assert.Equal(t, "Fetch a profile", decl.Description)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, []string{"username"}, decl.Parameters.Required)
	require.Contains(t, decl.Parameters.Properties, "username")
}

func TestToolsFromSpecsEmpty(t *testing.T) {
	assert.Nil(t, ToolsFromSpecs(nil))
}
