package types

import "errors"

// Sentinel errors for RuleKeeper operations. Callers discriminate with
// errors.Is; wrapping sites attach detail via fmt.Errorf and %w.
var (
	// ErrUnknownScheme indicates a field address with an unregistered scheme.
	ErrUnknownScheme = errors.New("unsupported field scheme")

	// ErrBadFieldPath indicates a field path that cannot be parsed.
	ErrBadFieldPath = errors.New("invalid field path")

	// ErrUnknownOperator indicates a condition or action operator name that is
	// not present in the registry.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrConditionCheck indicates an operator failure while checking a
	// resolved value, e.g. a parameter type mismatch at evaluation time.
	ErrConditionCheck = errors.New("condition check failed")

	// ErrActionParam indicates an invalid action parameter at dispatch time,
	// e.g. a template referencing a missing data key.
	ErrActionParam = errors.New("invalid action parameter")

	// ErrValidation indicates a rule specification that failed structural or
	// per-operator validation at build time.
	ErrValidation = errors.New("rule validation failed")

	// ErrConflict indicates a rule identifier that already exists.
	ErrConflict = errors.New("rule already exists")

	// ErrNotFound indicates an unknown rule identifier on get or delete.
	ErrNotFound = errors.New("rule not found")
)
