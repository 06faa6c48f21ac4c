package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/db"
	"github.com/solatis/rulekeeper/internal/rules"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "rulekeeper",
	Short: "RuleKeeper declarative node rule engine",
	Long:  `RuleKeeper evaluates stored rules against inspected node snapshots and dispatches the actions of every matching rule.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves configuration with flag overrides applied.
func loadConfig() (*config.EngineConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.EngineConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openDatabase opens the configured database and verifies the rule schema has
// been migrated.
func openDatabase(cfg *config.EngineConfig) (*sqlx.DB, error) {
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			database.Close()
			return nil, fmt.Errorf("migration %s not applied - run 'rulekeeper migrate' first", s.ID)
		}
	}

	return database, nil
}

// newEngine wires the engine with the SQL rule store and the built-in
// operator catalog.
func newEngine(cfg *config.EngineConfig, database *sqlx.DB, logger *slog.Logger) (*rules.Engine, error) {
	store, err := db.NewRuleStore(database)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule store: %w", err)
	}
	return rules.NewEngine(store, rules.DefaultRegistry(), logger)
}
