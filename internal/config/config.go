package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ToolDir is the per-workspace state directory
const ToolDir = ".impactmap"

// Config represents the complete impactmap configuration
type Config struct {
	Version       int    `json:"version" mapstructure:"version"`
	WorkspaceRoot string `json:"workspaceRoot" mapstructure:"workspaceRoot"`

	Trace   TraceConfig   `json:"trace" mapstructure:"trace"`
	Indexer IndexerConfig `json:"indexer" mapstructure:"indexer"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// TraceConfig contains impact tracing defaults
type TraceConfig struct {
	MaxDepth     int  `json:"maxDepth" mapstructure:"maxDepth"`
	Upstream     bool `json:"upstream" mapstructure:"upstream"`
	Downstream   bool `json:"downstream" mapstructure:"downstream"`
	CrossService bool `json:"crossService" mapstructure:"crossService"`
}

// IndexerConfig contains workspace indexing configuration
type IndexerConfig struct {
	IgnoreDirs      []string `json:"ignoreDirs" mapstructure:"ignoreDirs"`
	PersistentCache bool     `json:"persistentCache" mapstructure:"persistentCache"`
	Workers         int      `json:"workers" mapstructure:"workers"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: ".",
		Trace: TraceConfig{
			MaxDepth:     10,
			Upstream:     true,
			Downstream:   true,
			CrossService: true,
		},
		Indexer: IndexerConfig{
			IgnoreDirs:      []string{"target", "build", "node_modules", "out", "dist"},
			PersistentCache: true,
			Workers:         0, // 0 means one worker per CPU
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <workspace>/.impactmap/config.json.
// A missing config file yields the defaults.
func LoadConfig(workspaceRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("workspaceRoot", ".")
	v.SetDefault("trace.maxDepth", 10)
	v.SetDefault("trace.upstream", true)
	v.SetDefault("trace.downstream", true)
	v.SetDefault("trace.crossService", true)
	v.SetDefault("indexer.ignoreDirs", []string{"target", "build", "node_modules", "out", "dist"})
	v.SetDefault("indexer.persistentCache", true)
	v.SetDefault("indexer.workers", 0)
	v.SetDefault("logging.format", "human")
	v.SetDefault("logging.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(workspaceRoot, ToolDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <workspace>/.impactmap/config.json
func (c *Config) Save(workspaceRoot string) error {
	dir := filepath.Join(workspaceRoot, ToolDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Trace.MaxDepth < 0 {
		return &ConfigError{Field: "trace.maxDepth", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
