// internal/rules/operators.go
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Operator capability interfaces and the name-keyed registry.
 *
 * Condition and action operators are pluggable, polymorphic over a small
 * capability set. The registry is populated at process start and treated as
 * immutable afterwards; concurrent lookups are safe.
 *
 * Condition operators: Check one resolved value, Validate build-time
 * parameters, and declare whether an absent field is tolerated (AllowNone).
 *
 * Action operators: Apply to one target, Validate build-time parameters, and
 * declare which string parameters are eligible for templating
 * (FormattedParams).
 */

// Params carries the operator-specific parameters of one condition or action.
type Params map[string]any

// String returns the string value of a parameter, or an empty string when the
// key is absent or not a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// ConditionOperator checks resolved field values against its parameters.
type ConditionOperator interface {
	// Check reports whether value passes the condition. A returned error
	// indicates an evaluation-time failure (e.g. parameter type mismatch)
	// and aborts the owning rule only.
	Check(ec *EvalContext, value any, params Params) (bool, error)

	// Validate rejects invalid build-time parameters.
	Validate(params Params) error

	// AllowNone reports whether an absent field is tolerated: resolution
	// yielding zero values is fed to Check as a single nil value instead of
	// failing the rule.
	AllowNone() bool
}

// ActionOperator applies a rule action to one matched target.
type ActionOperator interface {
	// Apply runs the action against target. Operators may mutate external
	// state through the snapshot's NodeClient; the engine does not sandbox
	// or roll back these effects.
	Apply(ctx context.Context, ec *EvalContext, target Target, params Params) error

	// Validate rejects invalid build-time parameters.
	Validate(params Params) error

	// FormattedParams names the string parameters whose values are resolved
	// against the inspection data before dispatch.
	FormattedParams() []string
}

// Registry maps operator names to implementations for both catalogs.
// Registration happens at process start; lookups are read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]ConditionOperator
	actions    map[string]ActionOperator
}

// NewRegistry creates an empty operator registry.
func NewRegistry() *Registry {
	return &Registry{
		conditions: make(map[string]ConditionOperator),
		actions:    make(map[string]ActionOperator),
	}
}

// DefaultRegistry returns a registry populated with the built-in operators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, op := range builtinConditions() {
		r.RegisterCondition(name, op)
	}
	for name, op := range builtinActions() {
		r.RegisterAction(name, op)
	}
	return r
}

// RegisterCondition adds a condition operator under name, replacing any
// previous registration.
func (r *Registry) RegisterCondition(name string, op ConditionOperator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = op
}

// RegisterAction adds an action operator under name, replacing any previous
// registration.
func (r *Registry) RegisterAction(name string, op ActionOperator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = op
}

// Condition looks up a condition operator by name.
func (r *Registry) Condition(name string) (ConditionOperator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.conditions[name]
	if !ok {
		return nil, fmt.Errorf("%w: condition %q", types.ErrUnknownOperator, name)
	}
	return op, nil
}

// Action looks up an action operator by name.
func (r *Registry) Action(name string) (ActionOperator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: action %q", types.ErrUnknownOperator, name)
	}
	return op, nil
}

// ConditionNames returns the registered condition operator names, sorted for
// deterministic schema generation.
func (r *Registry) ConditionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conditions))
	for name := range r.conditions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActionNames returns the registered action operator names, sorted for
// deterministic schema generation.
func (r *Registry) ActionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
