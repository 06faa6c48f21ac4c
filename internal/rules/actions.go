// internal/rules/actions.go
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Action dispatch and parameter templating.
 *
 * ApplyActions runs a matched rule's actions in declaration order against
 * every target in the match's target set. Before each dispatch, string
 * parameters named by the operator's FormattedParams are resolved against the
 * snapshot's inspection data; a template referencing a missing key aborts the
 * rule's remaining actions (other rules are unaffected).
 *
 * Template markers have the form {data[key][sub]...}: a bracket chain of keys
 * walked into the inspection data tree, with integer keys indexing lists.
 * Resolution is eager and happens before the operator sees the parameters.
 *
 * Built-in actions: set-attribute and extend-attribute patch the target
 * through the snapshot's NodeClient; fail aborts the rule with a templated
 * message; log emits a structured log line and mutates nothing.
 */

// formatMarker matches one {data[...]...} template marker; the bracket chain
// is extracted by formatKeys.
var (
	formatMarker = regexp.MustCompile(`\{data((?:\[[^\[\]{}]+\])+)\}`)
	formatKeys   = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// FormatParam resolves every template marker in value against the inspection
// data tree. Pure function; returns ErrActionParam naming the first missing
// key.
func FormatParam(value string, data map[string]any) (string, error) {
	var resolveErr error
	out := formatMarker.ReplaceAllStringFunc(value, func(marker string) string {
		if resolveErr != nil {
			return marker
		}
		chain := formatMarker.FindStringSubmatch(marker)[1]
		var current any = data
		for _, m := range formatKeys.FindAllStringSubmatch(chain, -1) {
			key := m[1]
			next, err := walkKey(current, key)
			if err != nil {
				resolveErr = fmt.Errorf("%w: formatting variable %q: %v", types.ErrActionParam, key, err)
				return marker
			}
			current = next
		}
		return fmt.Sprintf("%v", current)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}

// walkKey descends one key into a map or list node of the data tree.
func walkKey(current any, key string) (any, error) {
	switch node := current.(type) {
	case map[string]any:
		next, ok := node[key]
		if !ok {
			return nil, fmt.Errorf("key not found")
		}
		return next, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, fmt.Errorf("not a valid list index")
		}
		return node[idx], nil
	default:
		return nil, fmt.Errorf("cannot descend into %T", current)
	}
}

// ApplyActions dispatches every action of a matched rule, in order, to every
// target. A failure aborts this rule's remaining actions only; the caller
// proceeds with other rules.
func ApplyActions(ctx context.Context, reg *Registry, logger *slog.Logger, ec *EvalContext, rule *types.Rule, targets []Target) error {
	logger.Debug("running actions", "rule", rule.Label())

	for _, act := range rule.Actions {
		op, err := reg.Action(act.Action)
		if err != nil {
			return err
		}

		params := make(Params, len(act.Params))
		for k, v := range act.Params {
			params[k] = v
		}
		for _, name := range op.FormattedParams() {
			raw, ok := params[name].(string)
			if !ok || raw == "" {
				continue
			}
			resolved, err := FormatParam(raw, ec.Data)
			if err != nil {
				return fmt.Errorf("action %q: %w", act.Action, err)
			}
			params[name] = resolved
		}

		for _, target := range targets {
			logger.Debug("running action", "rule", rule.Label(),
				"action", act.Action, "target", target.String())
			if err := op.Apply(ctx, ec, target, params); err != nil {
				return fmt.Errorf("action %q on %s: %w", act.Action, target, err)
			}
		}
	}

	logger.Debug("successfully applied actions", "rule", rule.Label())
	return nil
}

// builtinActions returns the standard action operator catalog.
func builtinActions() map[string]ActionOperator {
	return map[string]ActionOperator{
		"fail":             failAction{},
		"log":              logAction{},
		"set-attribute":    setAttributeAction{},
		"extend-attribute": extendAttributeAction{},
	}
}

// failAction aborts the rule with a templated message. Used to flag nodes
// that violate an expected hardware configuration.
type failAction struct{}

func (failAction) FormattedParams() []string { return []string{"message"} }

func (failAction) Validate(params Params) error {
	if params.String("message") == "" {
		return fmt.Errorf("missing required string parameter 'message'")
	}
	return nil
}

func (failAction) Apply(_ context.Context, _ *EvalContext, _ Target, params Params) error {
	return fmt.Errorf("rule failed: %s", params.String("message"))
}

// logAction writes a structured log line and mutates nothing. Serves as the
// example action for operator authors.
type logAction struct{}

func (logAction) FormattedParams() []string { return []string{"message"} }

func (logAction) Validate(Params) error { return nil }

func (logAction) Apply(_ context.Context, ec *EvalContext, target Target, params Params) error {
	msg := params.String("message")
	if msg == "" {
		msg = "rule action triggered"
	}
	var node types.NodeID
	if ec.Node != nil {
		node = ec.Node.UUID
	}
	slog.Info(msg, "node", string(node), "target", target.String())
	return nil
}

// setAttributeAction writes a value at a path on the matched target through
// the NodeClient.
type setAttributeAction struct{}

func (setAttributeAction) FormattedParams() []string { return []string{"value"} }

func (setAttributeAction) Validate(params Params) error {
	if params.String("path") == "" {
		return fmt.Errorf("missing required string parameter 'path'")
	}
	if _, ok := params["value"]; !ok {
		return fmt.Errorf("missing required parameter 'value'")
	}
	return nil
}

func (setAttributeAction) Apply(ctx context.Context, ec *EvalContext, target Target, params Params) error {
	if ec.Client == nil {
		return fmt.Errorf("no node client configured")
	}
	path := normalizePath(params.String("path"))
	if target.Kind == TargetPort {
		return ec.Client.SetPortAttribute(ctx, ec.Ports[target.Port].UUID, path, params["value"])
	}
	if ec.Node == nil {
		return fmt.Errorf("no node in evaluation snapshot")
	}
	return ec.Client.SetNodeAttribute(ctx, ec.Node.UUID, path, params["value"])
}

// extendAttributeAction appends a value to a list attribute on the node.
// Always node-scoped: list attributes live on the node record.
type extendAttributeAction struct{}

func (extendAttributeAction) FormattedParams() []string { return []string{"value"} }

func (extendAttributeAction) Validate(params Params) error {
	if params.String("path") == "" {
		return fmt.Errorf("missing required string parameter 'path'")
	}
	if _, ok := params["value"]; !ok {
		return fmt.Errorf("missing required parameter 'value'")
	}
	if u, ok := params["unique"]; ok {
		if _, isBool := u.(bool); !isBool {
			return fmt.Errorf("parameter 'unique' must be a boolean")
		}
	}
	return nil
}

func (extendAttributeAction) Apply(ctx context.Context, ec *EvalContext, _ Target, params Params) error {
	if ec.Client == nil {
		return fmt.Errorf("no node client configured")
	}
	if ec.Node == nil {
		return fmt.Errorf("no node in evaluation snapshot")
	}
	unique, _ := params["unique"].(bool)
	return ec.Client.ExtendNodeAttribute(ctx, ec.Node.UUID, normalizePath(params.String("path")), params["value"], unique)
}

// normalizePath ensures attribute paths carry a leading slash, matching the
// JSON-patch style paths the inventory API expects.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
