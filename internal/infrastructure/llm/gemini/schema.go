package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Local JSON schemas the decoded responses are checked against before they
// are mapped onto domain types.
var (
	qualityValidationSchema = mustCompileSchema("quality.json", map[string]any{
		"type":     "object",
		"required": []string{"isGoodQuality", "score", "feedback"},
		"properties": map[string]any{
			"isGoodQuality": map[string]any{"type": "boolean"},
			"score":         map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"feedback": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	})

	verificationValidationSchema = mustCompileSchema("verification.json", map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type":     "object",
			"required": []string{"match"},
			"properties": map[string]any{
				"match":  map[string]any{"type": "boolean"},
				"reason": map[string]any{"type": []string{"string", "null"}},
			},
		},
	})
)

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func mustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	schema, err := compileSchema(name, schemaMap)
	if err != nil {
		panic(fmt.Sprintf("gemini: %s: %v", name, err))
	}
	return schema
}

// validateJSON decodes data and checks it against schema.
func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
