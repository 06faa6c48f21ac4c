// internal/rules/engine.go
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Engine orchestration and rule building.
 *
 * The engine owns the external collaborators: the rule repository, the
 * operator registry, and the schemas compiled from the registry at
 * construction. Evaluation is single-pass and stateless per Apply call;
 * concurrent Apply calls for different snapshots share no mutable state.
 * Serialization of concurrent passes targeting the same node, if needed, is
 * the caller's responsibility.
 *
 * Apply loads all rules in creation order, collects (rule, targets) pairs for
 * every match in a first pass, then dispatches actions in a second pass in
 * the same order. Later rules are matched against the original snapshot even
 * if an earlier rule's actions changed the underlying resource; actions never
 * feed back into the same pass. A failure while evaluating or applying one
 * rule is logged and does not stop the run.
 *
 * CreateRule validates a raw rule specification in two steps: structural
 * shape against the compiled schemas, then per-operator parameter validation
 * with the reserved keys stripped. Build-time errors are fatal to that single
 * call and never partially persist a rule.
 */

// Repository is the durable rule store consumed by the engine. A rule and its
// conditions/actions are created and deleted atomically; List returns rules
// in creation order.
type Repository interface {
	Create(ctx context.Context, rule *types.Rule) error
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	List(ctx context.Context) ([]*types.Rule, error)
	Delete(ctx context.Context, id types.RuleID) error
	DeleteAll(ctx context.Context) error
}

// reserved keys are condition/action structure, not operator parameters.
var reservedConditionKeys = map[string]bool{"op": true, "field": true, "multiple": true, "invert": true}

// Engine evaluates stored rules against evaluation snapshots and builds new
// rules from raw specifications.
type Engine struct {
	repo    Repository
	reg     *Registry
	schemas *schemaSet
	logger  *slog.Logger
}

// NewEngine creates an engine, compiling the rule specification schemas from
// the registry once. The registry must not be mutated afterwards.
func NewEngine(repo Repository, reg *Registry, logger *slog.Logger) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo cannot be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("reg cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schemas, err := compileSchemas(reg)
	if err != nil {
		return nil, err
	}
	return &Engine{repo: repo, reg: reg, schemas: schemas, logger: logger}, nil
}

// CreateRule validates a raw rule specification, builds the immutable rule,
// and persists it. When id is empty a UUIDv7 identifier is generated.
// Returns ErrValidation for a bad specification and ErrConflict for a
// duplicate identifier; nothing is persisted on failure.
func (e *Engine) CreateRule(ctx context.Context, conditions, actions []map[string]any, id types.RuleID, description string) (*types.Rule, error) {
	if id == "" {
		id = types.NewRuleID()
	} else if _, err := types.ParseRuleID(string(id)); err != nil {
		return nil, fmt.Errorf("%w: invalid rule id %q: %v", types.ErrValidation, id, err)
	}

	e.logger.Debug("creating rule", "rule_id", string(id), "description", description)

	if err := e.schemas.validateConditions(conditions); err != nil {
		return nil, err
	}
	if err := e.schemas.validateActions(actions); err != nil {
		return nil, err
	}

	builtConditions := make([]types.Condition, 0, len(conditions))
	for _, doc := range conditions {
		cond, err := e.buildCondition(doc)
		if err != nil {
			return nil, err
		}
		builtConditions = append(builtConditions, cond)
	}

	builtActions := make([]types.Action, 0, len(actions))
	for _, doc := range actions {
		act, err := e.buildAction(doc)
		if err != nil {
			return nil, err
		}
		builtActions = append(builtActions, act)
	}

	rule := &types.Rule{
		ID:          id,
		Description: description,
		Conditions:  builtConditions,
		Actions:     builtActions,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	e.logger.Info("created rule", "rule_id", string(id), "description", description)
	return rule, nil
}

// buildCondition converts one raw condition document, asking the operator to
// validate its parameters. The schema has already checked the shape.
func (e *Engine) buildCondition(doc map[string]any) (types.Condition, error) {
	opName, _ := doc["op"].(string)
	field, _ := doc["field"].(string)

	op, err := e.reg.Condition(opName)
	if err != nil {
		return types.Condition{}, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	params := make(map[string]any)
	for k, v := range doc {
		if !reservedConditionKeys[k] {
			params[k] = v
		}
	}
	if err := op.Validate(Params(params)); err != nil {
		return types.Condition{}, fmt.Errorf("%w: invalid parameters for operator %q: %v", types.ErrValidation, opName, err)
	}

	multiple := types.DefaultMultiple
	if raw, ok := doc["multiple"].(string); ok {
		multiple = types.Multiple(raw)
	}
	invert, _ := doc["invert"].(bool)

	return types.Condition{
		Field:    field,
		Op:       opName,
		Multiple: multiple,
		Invert:   invert,
		Params:   params,
	}, nil
}

// buildAction converts one raw action document, asking the operator to
// validate its parameters.
func (e *Engine) buildAction(doc map[string]any) (types.Action, error) {
	name, _ := doc["action"].(string)

	op, err := e.reg.Action(name)
	if err != nil {
		return types.Action{}, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	params := make(map[string]any)
	for k, v := range doc {
		if k != "action" {
			params[k] = v
		}
	}
	if err := op.Validate(Params(params)); err != nil {
		return types.Action{}, fmt.Errorf("%w: invalid parameters for action %q: %v", types.ErrValidation, name, err)
	}

	return types.Action{Action: name, Params: params}, nil
}

// GetRule returns a stored rule by id. Returns ErrNotFound for an unknown id.
func (e *Engine) GetRule(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	return e.repo.Get(ctx, id)
}

// ListRules returns all stored rules in creation order.
func (e *Engine) ListRules(ctx context.Context) ([]*types.Rule, error) {
	return e.repo.List(ctx)
}

// DeleteRule deletes a rule and its conditions/actions as a unit.
// Returns ErrNotFound for an unknown id.
func (e *Engine) DeleteRule(ctx context.Context, id types.RuleID) error {
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.Info("deleted rule", "rule_id", string(id))
	return nil
}

// DeleteAllRules deletes every stored rule.
func (e *Engine) DeleteAllRules(ctx context.Context) error {
	if err := e.repo.DeleteAll(ctx); err != nil {
		return err
	}
	e.logger.Info("deleted all rules")
	return nil
}

// ruleMatch pairs a matched rule with its resolved target set.
type ruleMatch struct {
	rule    *types.Rule
	targets []Target
}

// Apply evaluates every stored rule against the snapshot and dispatches
// actions for each match. An empty repository or zero matches performs no
// actions and is not an error. Per-rule failures are logged and skipped.
func (e *Engine) Apply(ctx context.Context, ec *EvalContext) error {
	stored, err := e.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	if len(stored) == 0 {
		e.logger.Debug("no rules to apply")
		return nil
	}

	var matches []ruleMatch
	for _, rule := range stored {
		outcome, err := Matches(e.reg, e.logger, ec, rule)
		if err != nil {
			e.logger.Warn("skipping rule: evaluation failed",
				"rule", rule.Label(), "error", err)
			continue
		}
		if outcome.Matched {
			e.logger.Info("rule will be applied", "rule", rule.Label())
			matches = append(matches, ruleMatch{rule: rule, targets: outcome.Targets})
		}
	}

	if len(matches) == 0 {
		e.logger.Debug("no rules matched")
		return nil
	}

	for _, m := range matches {
		if err := ApplyActions(ctx, e.reg, e.logger, ec, m.rule, m.targets); err != nil {
			e.logger.Warn("rule actions aborted",
				"rule", m.rule.Label(), "error", err)
		}
	}

	e.logger.Debug("finished applying rules", "matched", len(matches))
	return nil
}
