// internal/types/rules.go
package types

import "time"

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, Condition, and Action structures used by internal/rules for
 * evaluation and by internal/core/db for storage. These types are wire-format
 * agnostic - raw JSON documents are converted at the builder boundary.
 *
 * Key types:
 *   - Rule: Complete rule definition (ordered conditions and actions)
 *   - Condition: Single field check with operator and multiplicity policy
 *   - Action: Single dispatch with operator name and parameters
 *   - Multiple: Policy for collapsing several resolved values to one boolean
 *
 * Dependencies: None (standard library only)
 */

// Multiple governs how a condition with multiple resolved field values is
// collapsed to a single boolean.
type Multiple string

const (
	// MultipleAll requires every resolved value to pass the check.
	MultipleAll Multiple = "all"
	// MultipleAny requires at least one resolved value to pass the check.
	MultipleAny Multiple = "any"
	// MultipleFirst considers only the first resolved value.
	MultipleFirst Multiple = "first"

	// DefaultMultiple is applied when a condition does not set the policy.
	DefaultMultiple = MultipleAny
)

// Valid reports whether m is one of the recognized multiplicity policies.
func (m Multiple) Valid() bool {
	switch m {
	case MultipleAll, MultipleAny, MultipleFirst:
		return true
	}
	return false
}

// Condition is a single field check within a rule. Immutable after build;
// owned exclusively by its Rule.
type Condition struct {
	Field    string         `json:"field"`              // scheme://path field address
	Op       string         `json:"op"`                 // condition operator name
	Multiple Multiple       `json:"multiple,omitempty"` // value collapse policy, default "any"
	Invert   bool           `json:"invert,omitempty"`   // negate the collapsed result
	Params   map[string]any `json:"params,omitempty"`   // operator-specific parameters
}

// Action is a single dispatch within a rule. Immutable after build; owned
// exclusively by its Rule.
type Action struct {
	Action string         `json:"action"`           // action operator name
	Params map[string]any `json:"params,omitempty"` // operator-specific parameters
}

// Rule is an ordered list of AND-combined conditions plus an ordered list of
// actions. Conditions may be empty (an unconditional rule); actions must not be.
type Rule struct {
	ID          RuleID      `json:"uuid"`
	Description string      `json:"description,omitempty"`
	Conditions  []Condition `json:"conditions"`
	Actions     []Action    `json:"actions"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Label returns the description, falling back to the rule id. Used for
// human-readable log lines.
func (r *Rule) Label() string {
	if r.Description != "" {
		return r.Description
	}
	return string(r.ID)
}

// AsMap renders a condition as the flat document shape used by the rule spec
// format: reserved keys plus operator parameters inlined.
func (c Condition) AsMap() map[string]any {
	out := make(map[string]any, len(c.Params)+4)
	for k, v := range c.Params {
		out[k] = v
	}
	out["field"] = c.Field
	out["op"] = c.Op
	if c.Multiple != "" {
		out["multiple"] = string(c.Multiple)
	}
	if c.Invert {
		out["invert"] = true
	}
	return out
}

// AsMap renders an action as the flat document shape used by the rule spec
// format.
func (a Action) AsMap() map[string]any {
	out := make(map[string]any, len(a.Params)+1)
	for k, v := range a.Params {
		out[k] = v
	}
	out["action"] = a.Action
	return out
}
