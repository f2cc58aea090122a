package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/kubilitics/kubilitics-ai/internal/tools"
)

// ToolsFromSpecs converts the catalog's tool specs into the Gemini
// function-calling schema. Grounded on
// haasonsaas-nexus/internal/agent/toolconv/gemini.go's ToGeminiTools /
// ToGeminiSchema, adapted to read tools.Spec.Parameters directly — it is
// already a map[string]any, so there is no JSON round-trip to unmarshal.
func ToolsFromSpecs(specs []tools.Spec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schemaFromMap(spec.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func schemaFromMap(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := raw["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := raw["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(propMap)
			}
		}
	}

	switch required := raw["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := raw["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}

	return schema
}
