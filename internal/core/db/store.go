package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/rulekeeper/internal/types"
)

// RuleStore is the SQL-backed rule repository. A rule and its conditions and
// actions are created and deleted atomically inside one transaction; List
// returns rules in creation order.
type RuleStore struct {
	db *sqlx.DB
	q  *Queries
}

// NewRuleStore creates a rule repository over an open database connection.
func NewRuleStore(database *sqlx.DB) (*RuleStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	queries, err := LoadQueries(database)
	if err != nil {
		return nil, err
	}
	return &RuleStore{db: database, q: queries}, nil
}

type ruleRow struct {
	RuleID      string         `db:"rule_id"`
	Description sql.NullString `db:"description"`
	CreatedAt   string         `db:"created_at"`
}

type conditionRow struct {
	Field    string `db:"field"`
	Op       string `db:"op"`
	Multiple string `db:"multiple"`
	Invert   int    `db:"invert"`
	Params   string `db:"params"`
}

type actionRow struct {
	Action string `db:"action"`
	Params string `db:"params"`
}

// Create persists a rule with its conditions and actions in one transaction.
// Returns ErrConflict when the rule id already exists.
func (s *RuleStore) Create(ctx context.Context, rule *types.Rule) error {
	existsSQL, err := s.q.Raw("rule-exists")
	if err != nil {
		return err
	}
	createSQL, err := s.q.Raw("create-rule")
	if err != nil {
		return err
	}
	condSQL, err := s.q.Raw("create-rule-condition")
	if err != nil {
		return err
	}
	actSQL, err := s.q.Raw("create-rule-action")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, existsSQL, string(rule.ID)); err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", types.ErrConflict, rule.ID)
	}

	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, createSQL,
		string(rule.ID), rule.Description, createdAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	for i, cond := range rule.Conditions {
		params, err := marshalParams(cond.Params)
		if err != nil {
			return err
		}
		invert := 0
		if cond.Invert {
			invert = 1
		}
		multiple := cond.Multiple
		if multiple == "" {
			multiple = types.DefaultMultiple
		}
		if _, err := tx.ExecContext(ctx, condSQL,
			string(rule.ID), i, cond.Field, cond.Op, string(multiple), invert, params); err != nil {
			return fmt.Errorf("failed to insert condition %d: %w", i, err)
		}
	}

	for i, act := range rule.Actions {
		params, err := marshalParams(act.Params)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, actSQL,
			string(rule.ID), i, act.Action, params); err != nil {
			return fmt.Errorf("failed to insert action %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule: %w", err)
	}
	return nil
}

// Get loads one rule with its conditions and actions.
// Returns ErrNotFound for an unknown id.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	if err := s.q.Get("get-rule", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	return s.loadRule(row)
}

// List loads all rules in creation order.
func (s *RuleStore) List(ctx context.Context) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select("list-rules", &rows); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	out := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := s.loadRule(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// loadRule assembles a full rule from its row and child rows.
func (s *RuleStore) loadRule(row ruleRow) (*types.Rule, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("malformed created_at for rule %s: %w", row.RuleID, err)
	}

	rule := &types.Rule{
		ID:          types.RuleID(row.RuleID),
		Description: row.Description.String,
		CreatedAt:   createdAt,
	}

	var condRows []conditionRow
	if err := s.q.Select("list-rule-conditions", &condRows, row.RuleID); err != nil {
		return nil, fmt.Errorf("failed to query conditions for rule %s: %w", row.RuleID, err)
	}
	for _, c := range condRows {
		params, err := unmarshalParams(c.Params)
		if err != nil {
			return nil, fmt.Errorf("malformed condition params for rule %s: %w", row.RuleID, err)
		}
		rule.Conditions = append(rule.Conditions, types.Condition{
			Field:    c.Field,
			Op:       c.Op,
			Multiple: types.Multiple(c.Multiple),
			Invert:   c.Invert != 0,
			Params:   params,
		})
	}

	var actRows []actionRow
	if err := s.q.Select("list-rule-actions", &actRows, row.RuleID); err != nil {
		return nil, fmt.Errorf("failed to query actions for rule %s: %w", row.RuleID, err)
	}
	for _, a := range actRows {
		params, err := unmarshalParams(a.Params)
		if err != nil {
			return nil, fmt.Errorf("malformed action params for rule %s: %w", row.RuleID, err)
		}
		rule.Actions = append(rule.Actions, types.Action{Action: a.Action, Params: params})
	}

	return rule, nil
}

// Delete removes a rule and its conditions/actions in one transaction.
// Returns ErrNotFound for an unknown id.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	actSQL, err := s.q.Raw("delete-rule-actions")
	if err != nil {
		return err
	}
	condSQL, err := s.q.Raw("delete-rule-conditions")
	if err != nil {
		return err
	}
	ruleSQL, err := s.q.Raw("delete-rule")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, actSQL, string(id)); err != nil {
		return fmt.Errorf("failed to delete actions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, condSQL, string(id)); err != nil {
		return fmt.Errorf("failed to delete conditions: %w", err)
	}
	res, err := tx.ExecContext(ctx, ruleSQL, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// DeleteAll removes every rule with its conditions/actions in one transaction.
func (s *RuleStore) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range []string{"delete-all-rule-actions", "delete-all-rule-conditions", "delete-all-rules"} {
		stmt, err := s.q.Raw(name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func marshalParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize params: %w", err)
	}
	return string(raw), nil
}

func unmarshalParams(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, err
	}
	return params, nil
}
