// internal/rules/builtin.go
package rules

import (
	"fmt"
	"net/netip"
	"reflect"
	"regexp"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Built-in condition operators.
 *
 * Comparison operators (eq, ne, lt, le, gt, ge) compare the resolved value
 * against the "value" parameter: numerically when both sides are numbers,
 * lexicographically when both are strings. Ordering across mixed types is an
 * evaluation-time error; eq/ne fall back to deep equality.
 *
 * matches/contains run a regular expression over the string rendering of the
 * value (full match vs. search). in-net checks IP membership in a CIDR
 * prefix. is-empty tolerates absent fields (AllowNone) and treats nil, empty
 * strings, and empty collections as empty.
 *
 * Why function-per-check on a handful of small structs: the operators share
 * the numeric coercion helpers below; polymorphism is limited to the
 * capability interface the registry needs.
 */

// builtinConditions returns the standard condition operator catalog.
func builtinConditions() map[string]ConditionOperator {
	return map[string]ConditionOperator{
		"eq":       compareCondition{op: "eq"},
		"ne":       compareCondition{op: "ne"},
		"lt":       compareCondition{op: "lt"},
		"le":       compareCondition{op: "le"},
		"gt":       compareCondition{op: "gt"},
		"ge":       compareCondition{op: "ge"},
		"in-net":   netCondition{},
		"matches":  reCondition{fullMatch: true},
		"contains": reCondition{},
		"is-empty": emptyCondition{},
	}
}

// compareCondition implements eq/ne/lt/le/gt/ge against the "value" parameter.
type compareCondition struct {
	op string
}

func (c compareCondition) AllowNone() bool { return false }

func (c compareCondition) Validate(params Params) error {
	if _, ok := params["value"]; !ok {
		return fmt.Errorf("missing required parameter 'value'")
	}
	return nil
}

func (c compareCondition) Check(_ *EvalContext, value any, params Params) (bool, error) {
	target, ok := params["value"]
	if !ok {
		return false, fmt.Errorf("%w: missing required parameter 'value'", types.ErrConditionCheck)
	}

	switch c.op {
	case "eq":
		return compareEqual(value, target), nil
	case "ne":
		return !compareEqual(value, target), nil
	}

	ord, err := compareOrder(value, target)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrConditionCheck, err)
	}
	switch c.op {
	case "lt":
		return ord < 0, nil
	case "le":
		return ord <= 0, nil
	case "gt":
		return ord > 0, nil
	case "ge":
		return ord >= 0, nil
	}
	return false, fmt.Errorf("%w: unknown comparison %q", types.ErrConditionCheck, c.op)
}

// compareEqual performs equality comparison with numeric type mixing.
// Handles float64/int/int64 from JSON unmarshaling; falls back to deep
// equality for composite values.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// compareOrder performs three-way comparison (-1/0/1). Numbers compare
// numerically, strings lexicographically; other combinations are not ordered.
func compareOrder(a, b any) (int, error) {
	if na, nb, ok := asNumbers(a, b); ok {
		switch {
		case na < nb:
			return -1, nil
		case na > nb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

// asNumbers attempts to convert both values to float64 for numeric comparison.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64, int, int64 from JSON unmarshaling and Go literals.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// netCondition implements in-net: IP address membership in a CIDR prefix.
type netCondition struct{}

func (netCondition) AllowNone() bool { return false }

func (netCondition) Validate(params Params) error {
	_, err := netip.ParsePrefix(params.String("value"))
	if err != nil {
		return fmt.Errorf("'value' must be a CIDR prefix: %v", err)
	}
	return nil
}

func (netCondition) Check(_ *EvalContext, value any, params Params) (bool, error) {
	prefix, err := netip.ParsePrefix(params.String("value"))
	if err != nil {
		return false, fmt.Errorf("%w: 'value' must be a CIDR prefix: %v", types.ErrConditionCheck, err)
	}
	s, ok := value.(string)
	if !ok {
		return false, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false, nil
	}
	return prefix.Contains(addr), nil
}

// reCondition implements matches (full match) and contains (search) over the
// string rendering of the value.
type reCondition struct {
	fullMatch bool
}

func (reCondition) AllowNone() bool { return false }

func (reCondition) Validate(params Params) error {
	v, ok := params["value"].(string)
	if !ok {
		return fmt.Errorf("missing required string parameter 'value'")
	}
	if _, err := regexp.Compile(v); err != nil {
		return fmt.Errorf("'value' is not a valid regular expression: %v", err)
	}
	return nil
}

func (c reCondition) Check(_ *EvalContext, value any, params Params) (bool, error) {
	expr, ok := params["value"].(string)
	if !ok {
		return false, fmt.Errorf("%w: missing required string parameter 'value'", types.ErrConditionCheck)
	}
	if c.fullMatch {
		expr = "^(?:" + expr + ")$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("%w: invalid regular expression: %v", types.ErrConditionCheck, err)
	}
	return re.MatchString(fmt.Sprintf("%v", value)), nil
}

// emptyCondition implements is-empty. Tolerates absent fields: a field that
// resolved to nothing is checked as nil and reports empty.
type emptyCondition struct{}

func (emptyCondition) AllowNone() bool { return true }

func (emptyCondition) Validate(Params) error { return nil }

func (emptyCondition) Check(_ *EvalContext, value any, _ Params) (bool, error) {
	switch v := value.(type) {
	case nil:
		return true, nil
	case string:
		return v == "", nil
	case []any:
		return len(v) == 0, nil
	case map[string]any:
		return len(v) == 0, nil
	default:
		return false, nil
	}
}
