// internal/rules/evaluate.go
package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Rule matching.
 *
 * Matches evaluates a rule's conditions against a snapshot, in declaration
 * order, AND-combined with short-circuit: the first failing condition stops
 * evaluation and later conditions are never checked. Zero conditions is an
 * unconditional match of the whole node.
 *
 * Per condition: resolve the field, feed each resolved value to the operator,
 * apply invert per value, then collapse per the multiplicity policy with
 * explicit early-return loops (all/any/first).
 *
 * Missing fields: zero resolved values on an AllowNone operator become a
 * single nil value; on any other operator the rule is not matched and the
 * non-match is logged informationally (a recoverable outcome, not an error).
 *
 * Target scoping: conditions addressing port:// fields record which port
 * records contributed a true result. The rule's target set is the
 * intersection of these sets across all port-scoped conditions, or the whole
 * node when no condition was port-scoped. A rule whose intersection is empty
 * is reported as not matched.
 */

// TargetKind distinguishes whole-node targets from port targets.
type TargetKind int

const (
	// TargetNode addresses the whole primary node record.
	TargetNode TargetKind = iota
	// TargetPort addresses one specific port record.
	TargetPort
)

// Target identifies one concrete element a matched rule's actions apply to.
type Target struct {
	Kind TargetKind
	Port int // index into the snapshot's ports when Kind == TargetPort
}

// String renders the target for log lines.
func (t Target) String() string {
	if t.Kind == TargetPort {
		return fmt.Sprintf("port[%d]", t.Port)
	}
	return "node"
}

// MatchOutcome is the result of matching one rule against one snapshot.
type MatchOutcome struct {
	Matched bool
	Targets []Target // concrete targets, ordered; empty when not matched
}

// Matches evaluates every condition of rule against the snapshot.
// Returns a non-match without error for recoverable outcomes (failed
// condition, missing field on an intolerant operator, empty port
// intersection). Returns an error for addressing, configuration, and
// operator-check failures; such an error aborts this rule only.
func Matches(reg *Registry, logger *slog.Logger, ec *EvalContext, rule *types.Rule) (MatchOutcome, error) {
	portScoped := false
	var portSet map[int]bool

	for _, cond := range rule.Conditions {
		op, err := reg.Condition(cond.Op)
		if err != nil {
			return MatchOutcome{}, err
		}

		values, err := ResolveField(ec, cond.Field)
		if err != nil {
			return MatchOutcome{}, fmt.Errorf("field %q: %w", cond.Field, err)
		}

		if len(values) == 0 {
			if !op.AllowNone() {
				logger.Info("rule will not be applied: field not found",
					"rule", rule.Label(), "field", cond.Field)
				return MatchOutcome{}, nil
			}
			logger.Debug("field not found, operator tolerates absence",
				"rule", rule.Label(), "field", cond.Field)
			values = []Value{{Data: nil, Port: -1}}
		}

		matched, truePorts, err := collapseValues(op, ec, cond, values)
		if err != nil {
			return MatchOutcome{}, fmt.Errorf("condition %q on field %q: %w", cond.Op, cond.Field, err)
		}
		if !matched {
			logger.Info("rule will not be applied: condition failed",
				"rule", rule.Label(), "field", cond.Field, "op", cond.Op)
			return MatchOutcome{}, nil
		}

		if fieldScheme(cond.Field) == "port" {
			if !portScoped {
				portScoped = true
				portSet = truePorts
			} else {
				portSet = intersect(portSet, truePorts)
			}
		}
	}

	if !portScoped {
		return MatchOutcome{Matched: true, Targets: []Target{{Kind: TargetNode}}}, nil
	}

	if len(portSet) == 0 {
		logger.Info("rule will not be applied: port conditions matched disjoint ports",
			"rule", rule.Label())
		return MatchOutcome{}, nil
	}

	indices := make([]int, 0, len(portSet))
	for i := range portSet {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	targets := make([]Target, 0, len(indices))
	for _, i := range indices {
		targets = append(targets, Target{Kind: TargetPort, Port: i})
	}
	return MatchOutcome{Matched: true, Targets: targets}, nil
}

// collapseValues folds the per-value check results into one boolean per the
// condition's multiplicity policy, recording which port-scoped values
// contributed a true result. Explicit early returns keep the short-circuit
// behavior unit-testable with call-counting fakes.
func collapseValues(op ConditionOperator, ec *EvalContext, cond types.Condition, values []Value) (bool, map[int]bool, error) {
	multiple := cond.Multiple
	if multiple == "" {
		multiple = types.DefaultMultiple
	}

	truePorts := make(map[int]bool)
	record := func(v Value) {
		if v.Port >= 0 {
			truePorts[v.Port] = true
		}
	}

	switch multiple {
	case types.MultipleFirst:
		// Only the first value is checked; the rest are never evaluated.
		res, err := checkValue(op, ec, cond, values[0])
		if err != nil {
			return false, nil, err
		}
		if res {
			record(values[0])
		}
		return res, truePorts, nil

	case types.MultipleAll:
		for _, v := range values {
			res, err := checkValue(op, ec, cond, v)
			if err != nil {
				return false, nil, err
			}
			if !res {
				return false, nil, nil
			}
			record(v)
		}
		return true, truePorts, nil

	case types.MultipleAny:
		for _, v := range values {
			res, err := checkValue(op, ec, cond, v)
			if err != nil {
				return false, nil, err
			}
			if res {
				record(v)
				return true, truePorts, nil
			}
		}
		return false, nil, nil

	default:
		return false, nil, fmt.Errorf("%w: unknown multiplicity policy %q", types.ErrConditionCheck, multiple)
	}
}

// checkValue runs the operator on one value and applies the invert flag.
func checkValue(op ConditionOperator, ec *EvalContext, cond types.Condition, v Value) (bool, error) {
	res, err := op.Check(ec, v.Data, Params(cond.Params))
	if err != nil {
		return false, err
	}
	if cond.Invert {
		res = !res
	}
	return res, nil
}

// intersect returns the keys present in both sets.
func intersect(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}
