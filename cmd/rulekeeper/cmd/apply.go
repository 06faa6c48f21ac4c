package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply <snapshot.json>",
	Short: "Evaluate stored rules against a node snapshot",
	Long: `Evaluate every stored rule against a snapshot file containing the node
record, its ports, and the freeform inspection data:

  {"node": {...}, "ports": [...], "data": {...}}

Actions run against a dry-run inventory client that logs each patch instead
of applying it.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

// snapshotSpec is the on-disk evaluation snapshot shape.
type snapshotSpec struct {
	Node  *types.Node    `json:"node"`
	Ports []types.Port   `json:"ports,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var spec snapshotSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return fmt.Errorf("failed to parse snapshot file: %w", err)
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

	ec, err := rules.NewEvalContext(spec.Node, spec.Ports, spec.Data, dryRunClient{logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ActionTimeout)
	defer cancel()

	return engine.Apply(ctx, ec)
}

// dryRunClient logs inventory patches instead of applying them. The CLI has
// no live inventory connection; a real deployment supplies its own client.
type dryRunClient struct {
	logger *slog.Logger
}

func (c dryRunClient) SetNodeAttribute(_ context.Context, id types.NodeID, path string, value any) error {
	c.logger.Info("dry-run: set node attribute", "node", string(id), "path", path, "value", value)
	return nil
}

func (c dryRunClient) SetPortAttribute(_ context.Context, id types.PortID, path string, value any) error {
	c.logger.Info("dry-run: set port attribute", "port", string(id), "path", path, "value", value)
	return nil
}

func (c dryRunClient) ExtendNodeAttribute(_ context.Context, id types.NodeID, path string, value any, unique bool) error {
	c.logger.Info("dry-run: extend node attribute", "node", string(id), "path", path, "value", value, "unique", unique)
	return nil
}
