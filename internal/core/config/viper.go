package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*EngineConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultEngineConfig
	v.SetDefault("engine.database_url", "sqlite://rulekeeper.db")
	v.SetDefault("engine.log_level", "info")
	v.SetDefault("engine.log_format", "text")
	v.SetDefault("engine.action_timeout", "30s")

	// Bind environment variables with RK_ prefix
	v.SetEnvPrefix("RK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &EngineConfig{
		DatabaseURL:   v.GetString("engine.database_url"),
		LogLevel:      v.GetString("engine.log_level"),
		LogFormat:     v.GetString("engine.log_format"),
		ActionTimeout: v.GetDuration("engine.action_timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
