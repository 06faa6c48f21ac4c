package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/rulekeeper/internal/types"
)

// testStore opens a throwaway SQLite database, runs migrations, and returns a
// ready rule store. A file-backed database is used because each pooled
// connection to :memory: would get its own empty database.
func testStore(t *testing.T) *RuleStore {
	t.Helper()

	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}

	store, err := NewRuleStore(database)
	if err != nil {
		t.Fatalf("NewRuleStore() error = %v, want nil", err)
	}
	return store
}

func sampleRule(id types.RuleID, createdAt time.Time) *types.Rule {
	return &types.Rule{
		ID:          id,
		Description: "tag rack 4 nodes",
		CreatedAt:   createdAt,
		Conditions: []types.Condition{
			{
				Field:    "node://driver",
				Op:       "eq",
				Multiple: types.MultipleAny,
				Params:   map[string]any{"value": "ipmi"},
			},
			{
				Field:    "port://mac",
				Op:       "matches",
				Multiple: types.MultipleAll,
				Invert:   true,
				Params:   map[string]any{"value": "de:ad:.*"},
			},
		},
		Actions: []types.Action{
			{Action: "set-attribute", Params: map[string]any{"path": "/extra/rack", "value": "4"}},
			{Action: "log", Params: map[string]any{"message": "tagged"}},
		},
	}
}

func TestRuleStore_CreateGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	createdAt := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	rule := sampleRule(types.NewRuleID(), createdAt)
	if err := store.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}

	got, err := store.Get(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}

	if got.ID != rule.ID || got.Description != rule.Description {
		t.Errorf("Get() = %s %q, want %s %q", got.ID, got.Description, rule.ID, rule.Description)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, createdAt)
	}
	if !reflect.DeepEqual(got.Conditions, rule.Conditions) {
		t.Errorf("Conditions = %+v, want %+v", got.Conditions, rule.Conditions)
	}
	if !reflect.DeepEqual(got.Actions, rule.Actions) {
		t.Errorf("Actions = %+v, want %+v", got.Actions, rule.Actions)
	}
}

func TestRuleStore_CreateConflict(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := sampleRule(types.NewRuleID(), time.Now().UTC())
	if err := store.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}
	if err := store.Create(ctx, rule); !errors.Is(err, types.ErrConflict) {
		t.Errorf("Create() duplicate error = %v, want ErrConflict", err)
	}

	// the failed create must not have left partial child rows behind
	got, err := store.Get(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if len(got.Conditions) != 2 || len(got.Actions) != 2 {
		t.Errorf("rule has %d conditions / %d actions, want 2 / 2",
			len(got.Conditions), len(got.Actions))
	}
}

func TestRuleStore_GetNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), types.NewRuleID())
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRuleStore_ListCreationOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []types.RuleID
	// insert out of chronological order to prove ordering comes from the query
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		rule := sampleRule(types.NewRuleID(), base.Add(offset))
		rule.Description = fmt.Sprintf("created at +%s", offset)
		if err := store.Create(ctx, rule); err != nil {
			t.Fatalf("Create() error = %v, want nil", err)
		}
		ids = append(ids, rule.ID)
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(got))
	}
	want := []types.RuleID{ids[1], ids[2], ids[0]}
	for i, rule := range got {
		if rule.ID != want[i] {
			t.Errorf("List()[%d].ID = %s, want %s", i, rule.ID, want[i])
		}
	}
}

func TestRuleStore_ListEmpty(t *testing.T) {
	store := testStore(t)

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("len(List()) = %d, want 0", len(got))
	}
}

func TestRuleStore_Delete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := sampleRule(types.NewRuleID(), time.Now().UTC())
	if err := store.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}

	if err := store.Delete(ctx, rule.ID); err != nil {
		t.Fatalf("Delete() error = %v, want nil", err)
	}
	if _, err := store.Get(ctx, rule.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, rule.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}

	// the id can be reused once the rule is gone
	if err := store.Create(ctx, rule); err != nil {
		t.Errorf("Create() after delete error = %v, want nil", err)
	}
}

func TestRuleStore_DeleteAll(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, sampleRule(types.NewRuleID(), time.Now().UTC())); err != nil {
			t.Fatalf("Create() error = %v, want nil", err)
		}
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v, want nil", err)
	}
	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Errorf("len(List()) = %d after DeleteAll, want 0", len(got))
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Errorf("DeleteAll() on empty store error = %v, want nil", err)
	}
}

func TestRuleStore_EmptyParamsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := &types.Rule{
		ID:        types.NewRuleID(),
		CreatedAt: time.Now().UTC(),
		Conditions: []types.Condition{
			{Field: "inventory.bmc_address", Op: "is-empty", Multiple: types.MultipleAny},
		},
		Actions: []types.Action{{Action: "log"}},
	}
	if err := store.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}

	got, err := store.Get(ctx, rule.ID)
	if err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if got.Conditions[0].Params != nil {
		t.Errorf("Params = %v, want nil for empty params", got.Conditions[0].Params)
	}
	if got.Actions[0].Params != nil {
		t.Errorf("action Params = %v, want nil for empty params", got.Actions[0].Params)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer database.Close()

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() second run error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(database)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatal("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied after MigrateUp", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s has no applied_at timestamp", s.ID)
		}
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	defer database.Close()

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}

	tamper(t, database)

	if err := MigrateUp(database); err == nil {
		t.Fatal("MigrateUp() error = nil after checksum tampering, want error")
	}
}

func tamper(t *testing.T, database *sqlx.DB) {
	t.Helper()
	if _, err := database.Exec("UPDATE migrations SET checksum = 'bogus'"); err != nil {
		t.Fatalf("failed to corrupt checksum: %v", err)
	}
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	if _, err := Open("mysql://root@localhost/rules"); err == nil {
		t.Error("Open() error = nil for unsupported scheme, want error")
	}
	if _, err := Open("sqlite://"); err == nil {
		t.Error("Open() error = nil for empty sqlite path, want error")
	}
}
