package rules

import (
	"errors"
	"testing"

	"github.com/solatis/rulekeeper/internal/types"
)

func compiledSchemas(t *testing.T) *schemaSet {
	t.Helper()
	schemas, err := compileSchemas(DefaultRegistry())
	if err != nil {
		t.Fatalf("compileSchemas() error = %v, want nil", err)
	}
	return schemas
}

func TestValidateConditions(t *testing.T) {
	schemas := compiledSchemas(t)

	tests := []struct {
		name    string
		doc     []map[string]any
		wantErr bool
	}{
		{"nil conditions list", nil, false},
		{"empty conditions list", []map[string]any{}, false},
		{"minimal condition", []map[string]any{{"op": "eq", "field": "name", "value": 1}}, false},
		{"all structural keys", []map[string]any{
			{"op": "ne", "field": "name", "multiple": "first", "invert": true, "value": 1},
		}, false},
		{"extra operator parameters pass through", []map[string]any{
			{"op": "eq", "field": "name", "value": 1, "force": true},
		}, false},
		{"missing op", []map[string]any{{"field": "name"}}, true},
		{"missing field", []map[string]any{{"op": "eq"}}, true},
		{"op not in catalog", []map[string]any{{"op": "resembles", "field": "name"}}, true},
		{"bad multiple keyword", []map[string]any{
			{"op": "eq", "field": "name", "multiple": "most"},
		}, true},
		{"non-boolean invert", []map[string]any{
			{"op": "eq", "field": "name", "invert": "yes"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schemas.validateConditions(tt.doc)
			if tt.wantErr {
				if !errors.Is(err, types.ErrValidation) {
					t.Errorf("validateConditions() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("validateConditions() error = %v, want nil", err)
			}
		})
	}
}

func TestValidateActions(t *testing.T) {
	schemas := compiledSchemas(t)

	tests := []struct {
		name    string
		doc     []map[string]any
		wantErr bool
	}{
		{"minimal action", []map[string]any{{"action": "log"}}, false},
		{"operator parameters pass through", []map[string]any{
			{"action": "set-attribute", "path": "/a", "value": 1},
		}, false},
		{"nil actions list", nil, true},
		{"empty actions list", []map[string]any{}, true},
		{"missing action key", []map[string]any{{"path": "/a"}}, true},
		{"action not in catalog", []map[string]any{{"action": "reboot"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schemas.validateActions(tt.doc)
			if tt.wantErr {
				if !errors.Is(err, types.ErrValidation) {
					t.Errorf("validateActions() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Errorf("validateActions() error = %v, want nil", err)
			}
		})
	}
}

func TestSchemaEnumsTrackRegistry(t *testing.T) {
	reg := DefaultRegistry()
	reg.RegisterCondition("custom-cond", &countingOp{})

	schemas, err := compileSchemas(reg)
	if err != nil {
		t.Fatalf("compileSchemas() error = %v, want nil", err)
	}
	doc := []map[string]any{{"op": "custom-cond", "field": "name"}}
	if err := schemas.validateConditions(doc); err != nil {
		t.Errorf("validateConditions() error = %v, want registered operator accepted", err)
	}
}
