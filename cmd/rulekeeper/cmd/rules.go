package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/types"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage stored rules",
}

var ruleImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Validate and store rules from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleImport,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rules",
	RunE:  runRuleList,
}

var ruleShowCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Print one rule as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleShow,
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete [uuid]",
	Short: "Delete one rule, or all rules with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuleDelete,
}

var deleteAll bool

func init() {
	rootCmd.AddCommand(ruleCmd)
	ruleCmd.AddCommand(ruleImportCmd)
	ruleCmd.AddCommand(ruleListCmd)
	ruleCmd.AddCommand(ruleShowCmd)
	ruleCmd.AddCommand(ruleDeleteCmd)
	ruleDeleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every stored rule")
}

// ruleSpec is the on-disk rule document shape: flat condition and action
// objects with operator parameters inlined.
type ruleSpec struct {
	UUID        string           `json:"uuid,omitempty"`
	Description string           `json:"description,omitempty"`
	Conditions  []map[string]any `json:"conditions"`
	Actions     []map[string]any `json:"actions"`
}

func runRuleImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}

	// Accept a single rule object or a list of them
	var specs []ruleSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		var single ruleSpec
		if err := json.Unmarshal(raw, &single); err != nil {
			return fmt.Errorf("failed to parse rule file: %w", err)
		}
		specs = []ruleSpec{single}
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	engine, err := newEngine(cfg, database, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, spec := range specs {
		rule, err := engine.CreateRule(ctx, spec.Conditions, spec.Actions, types.RuleID(spec.UUID), spec.Description)
		if err != nil {
			return err
		}
		fmt.Printf("created rule %s\n", rule.ID)
	}
	return nil
}

func runRuleList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	engine, err := newEngine(cfg, database, newLogger(cfg))
	if err != nil {
		return err
	}

	stored, err := engine.ListRules(context.Background())
	if err != nil {
		return err
	}

	for _, r := range stored {
		fmt.Printf("%s  %s\n", r.ID, r.Description)
	}
	return nil
}

func runRuleShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	engine, err := newEngine(cfg, database, newLogger(cfg))
	if err != nil {
		return err
	}

	rule, err := engine.GetRule(context.Background(), types.RuleID(args[0]))
	if err != nil {
		return err
	}

	doc := ruleSpec{
		UUID:        string(rule.ID),
		Description: rule.Description,
		Conditions:  make([]map[string]any, 0, len(rule.Conditions)),
		Actions:     make([]map[string]any, 0, len(rule.Actions)),
	}
	for _, c := range rule.Conditions {
		doc.Conditions = append(doc.Conditions, c.AsMap())
	}
	for _, a := range rule.Actions {
		doc.Actions = append(doc.Actions, a.AsMap())
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRuleDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !deleteAll && len(args) == 0 {
		return fmt.Errorf("a rule uuid or --all is required")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	engine, err := newEngine(cfg, database, newLogger(cfg))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if deleteAll {
		return engine.DeleteAllRules(ctx)
	}
	return engine.DeleteRule(ctx, types.RuleID(args[0]))
}
