// internal/rules/schema.go
package rules

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Structural validation of rule specifications.
 *
 * Two fixed schema shapes, generated from the operator registry at engine
 * construction and compiled once: a conditions-list schema (array, each item
 * requires an "op" from the registered condition catalog and a "field"
 * string, optional "multiple" and "invert") and an actions-list schema
 * (array, at least one item, each requires an "action" from the registered
 * action catalog). Additional properties pass through; operators validate
 * their own parameters.
 *
 * The compiled schemas are read-only after construction and safe to share
 * across concurrent callers, since the registry is immutable after startup.
 */

// conditionsSchemaDoc builds the JSON schema document for a conditions list.
func conditionsSchemaDoc(reg *Registry) map[string]any {
	return map[string]any{
		"title": "RuleKeeper rule conditions schema",
		"type":  "array",
		// rules with no conditions always apply
		"minItems": 0,
		"items": map[string]any{
			"type":     "object",
			"required": []any{"op", "field"},
			"properties": map[string]any{
				"op": map[string]any{
					"description": "condition operator",
					"enum":        toAnySlice(reg.ConditionNames()),
				},
				"field": map[string]any{
					"description": "field address to match on",
					"type":        "string",
				},
				"multiple": map[string]any{
					"description": "how to treat multiple values",
					"enum":        []any{"all", "any", "first"},
				},
				"invert": map[string]any{
					"description": "whether to invert the result",
					"type":        "boolean",
				},
			},
			// other properties are validated by operators
			"additionalProperties": true,
		},
	}
}

// actionsSchemaDoc builds the JSON schema document for an actions list.
func actionsSchemaDoc(reg *Registry) map[string]any {
	return map[string]any{
		"title":    "RuleKeeper rule actions schema",
		"type":     "array",
		"minItems": 1,
		"items": map[string]any{
			"type":     "object",
			"required": []any{"action"},
			"properties": map[string]any{
				"action": map[string]any{
					"description": "action to take",
					"enum":        toAnySlice(reg.ActionNames()),
				},
			},
			// other properties are validated by operators
			"additionalProperties": true,
		},
	}
}

func toAnySlice(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

// schemaSet holds the compiled rule specification schemas.
type schemaSet struct {
	conditions *gojsonschema.Schema
	actions    *gojsonschema.Schema
}

// compileSchemas builds and compiles both schemas from the registry.
func compileSchemas(reg *Registry) (*schemaSet, error) {
	conditions, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(conditionsSchemaDoc(reg)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile conditions schema: %w", err)
	}
	actions, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(actionsSchemaDoc(reg)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile actions schema: %w", err)
	}
	return &schemaSet{conditions: conditions, actions: actions}, nil
}

// validateConditions checks a raw conditions document against the schema.
// Returns ErrValidation describing the first failure.
func (s *schemaSet) validateConditions(doc []map[string]any) error {
	return validateDoc(s.conditions, doc, "conditions")
}

// validateActions checks a raw actions document against the schema.
// Returns ErrValidation describing the first failure.
func (s *schemaSet) validateActions(doc []map[string]any) error {
	return validateDoc(s.actions, doc, "actions")
}

func validateDoc(schema *gojsonschema.Schema, doc []map[string]any, what string) error {
	// nil slices serialize as JSON null; validate the empty list instead
	if doc == nil {
		doc = []map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrValidation, what, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("%w: %s: %s", types.ErrValidation, what, first.String())
	}
	return nil
}
