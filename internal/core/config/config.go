// Package config provides configuration management for the RuleKeeper CLI
// and engine.
package config

import (
	"fmt"
	"time"
)

// EngineConfig holds configuration for the rule engine and its rule store.
type EngineConfig struct {
	DatabaseURL   string
	LogLevel      string
	LogFormat     string
	ActionTimeout time.Duration
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DatabaseURL:   "sqlite://rulekeeper.db",
		LogLevel:      "info",
		LogFormat:     "text",
		ActionTimeout: 30 * time.Second,
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks database URL presence, log settings, and a positive action
// timeout.
func (cfg *EngineConfig) Validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}
	if !validLogFormats[cfg.LogFormat] {
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be positive, got %v", cfg.ActionTimeout)
	}
	return nil
}
