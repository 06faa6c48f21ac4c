package rules

import (
	"errors"
	"reflect"
	"testing"

	"github.com/solatis/rulekeeper/internal/types"
)

func testContext(t *testing.T) *EvalContext {
	t.Helper()
	node := &types.Node{
		UUID:   "1f9e2c1a-0000-7000-8000-000000000001",
		Name:   "compute-01",
		Driver: "ipmi",
		Properties: map[string]any{
			"memory_mb": 32768,
			"cpus":      16,
		},
	}
	ports := []types.Port{
		{UUID: "port-0", MAC: "aa:bb:cc:dd:ee:01"},
		{UUID: "port-1", MAC: "aa:bb:cc:dd:ee:02", Extra: map[string]any{"pxe": true}},
	}
	data := map[string]any{
		"name": "compute-01",
		"inventory": map[string]any{
			"bmc_address": "192.168.1.42",
			"interfaces": []any{
				map[string]any{"name": "eth0", "speed": 1000},
				map[string]any{"name": "eth1", "speed": 10000},
			},
		},
		"tags": []any{"rack-4", "gpu"},
	}
	ec, err := NewEvalContext(node, ports, data, nil)
	if err != nil {
		t.Fatalf("NewEvalContext() error = %v, want nil", err)
	}
	return ec
}

func TestResolveField_Schemes(t *testing.T) {
	ec := testContext(t)

	tests := []struct {
		name     string
		field    string
		expected []any
		wantErr  error
	}{
		{
			name:     "default scheme is data",
			field:    "name",
			expected: []any{"compute-01"},
		},
		{
			name:     "explicit data scheme",
			field:    "data://inventory.bmc_address",
			expected: []any{"192.168.1.42"},
		},
		{
			name:     "node scheme queries the serialized node record",
			field:    "node://name",
			expected: []any{"compute-01"},
		},
		{
			name:     "node properties",
			field:    "node://properties.cpus",
			expected: []any{float64(16)},
		},
		{
			name:     "port scheme queries each port in turn",
			field:    "port://mac",
			expected: []any{"aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"},
		},
		{
			name:     "port scheme partial matches",
			field:    "port://extra.pxe",
			expected: []any{true},
		},
		{
			name:     "array traversal yields one value per element",
			field:    "inventory.interfaces.#.name",
			expected: []any{"eth0", "eth1"},
		},
		{
			name:     "array value without traversal is a single value",
			field:    "tags",
			expected: []any{[]any{"rack-4", "gpu"}},
		},
		{
			name:     "zero matches is a valid outcome",
			field:    "inventory.missing",
			expected: nil,
		},
		{
			name:    "unknown scheme",
			field:   "disk://size",
			wantErr: types.ErrUnknownScheme,
		},
		{
			name:    "empty path",
			field:   "node://",
			wantErr: types.ErrBadFieldPath,
		},
		{
			name:    "empty path segment",
			field:   "inventory..name",
			wantErr: types.ErrBadFieldPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := ResolveField(ec, tt.field)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveField() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveField() error = %v, want nil", err)
			}
			var got []any
			for _, v := range values {
				got = append(got, v.Data)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ResolveField() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolveField_PortValuesCarryPortIndex(t *testing.T) {
	ec := testContext(t)

	values, err := ResolveField(ec, "port://mac")
	if err != nil {
		t.Fatalf("ResolveField() error = %v, want nil", err)
	}
	if len(values) != 2 {
		t.Fatalf("len(values) = %d, want 2", len(values))
	}
	for i, v := range values {
		if v.Port != i {
			t.Errorf("values[%d].Port = %d, want %d", i, v.Port, i)
		}
	}
}

func TestResolveField_NonPortValuesHaveNoPortIndex(t *testing.T) {
	ec := testContext(t)

	values, err := ResolveField(ec, "node://name")
	if err != nil {
		t.Fatalf("ResolveField() error = %v, want nil", err)
	}
	if len(values) != 1 || values[0].Port != -1 {
		t.Errorf("values = %+v, want single value with Port == -1", values)
	}
}

func TestSplitField(t *testing.T) {
	tests := []struct {
		field  string
		scheme string
		path   string
	}{
		{"foo.bar", "data", "foo.bar"},
		{"data://foo", "data", "foo"},
		{"node://name", "node", "name"},
		{"port://mac", "port", "mac"},
		{"weird://a://b", "weird", "a://b"},
	}
	for _, tt := range tests {
		scheme, path := splitField(tt.field)
		if scheme != tt.scheme || path != tt.path {
			t.Errorf("splitField(%q) = (%q, %q), want (%q, %q)",
				tt.field, scheme, path, tt.scheme, tt.path)
		}
	}
}
