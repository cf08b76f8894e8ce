package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HistoryConfig controls recording of exported sessions in the history store
type HistoryConfig struct {
	// Enabled records every exported session
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the SQLite history database
	DBPath string `yaml:"db_path"`
}

// RouteConfig declares a custom metadata route registered at startup
type RouteConfig struct {
	// Route is the dotted route, e.g. "{id}.tags"
	Route string `yaml:"route"`

	// Event is the custom event that writes the route
	Event string `yaml:"event"`

	// Array appends each value instead of replacing it
	Array bool `yaml:"array"`

	// Default is written when the event carries no data
	Default any `yaml:"default"`
}

// Config represents testmeta configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	// Output is the export file path
	Output string `yaml:"output"`

	// Format is the export format (json or yaml)
	Format string `yaml:"format"`

	// Indent is the JSON export indentation
	Indent int `yaml:"indent"`

	// LockTimeout bounds the wait for the export file lock (0 = wait forever)
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// MetricsFile, when set, receives the run metrics in textfile format
	MetricsFile string `yaml:"metrics_file"`

	// History contains history store configuration
	History HistoryConfig `yaml:"history"`

	// Routes are custom metadata routes registered on every run
	Routes []RouteConfig `yaml:"routes"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		LogDir:      filepath.Join(".testmeta", "logs"),
		Output:      filepath.Join(".testmeta", "meta.json"),
		Format:      "json",
		Indent:      4,
		LockTimeout: 30 * time.Second,
		History: HistoryConfig{
			Enabled: false,
			DBPath:  filepath.Join(".testmeta", "history.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// A missing file yields the defaults; a malformed file is an error.
// Values present in the file override the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are written as strings ("30s")
	type yamlConfig struct {
		LogLevel    string        `yaml:"log_level"`
		LogDir      string        `yaml:"log_dir"`
		Output      string        `yaml:"output"`
		Format      string        `yaml:"format"`
		Indent      int           `yaml:"indent"`
		LockTimeout string        `yaml:"lock_timeout"`
		MetricsFile string        `yaml:"metrics_file"`
		History     HistoryConfig `yaml:"history"`
		Routes      []RouteConfig `yaml:"routes"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Output != "" {
		cfg.Output = yamlCfg.Output
	}
	if yamlCfg.Format != "" {
		cfg.Format = strings.ToLower(yamlCfg.Format)
	}
	if yamlCfg.LockTimeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid lock_timeout format %q: %w", yamlCfg.LockTimeout, err)
		}
		cfg.LockTimeout = timeout
	}
	if yamlCfg.MetricsFile != "" {
		cfg.MetricsFile = yamlCfg.MetricsFile
	}
	cfg.Routes = yamlCfg.Routes

	// indent and the history section may legitimately be zero/false, so they
	// are applied whenever the key is present
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if _, exists := rawMap["indent"]; exists {
			cfg.Indent = yamlCfg.Indent
		}
		if historySection, exists := rawMap["history"]; exists && historySection != nil {
			historyMap, _ := historySection.(map[string]interface{})
			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = yamlCfg.History.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = yamlCfg.History.DBPath
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .testmeta/config.yaml in the specified directory
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".testmeta", "config.yaml"))
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(logLevel, logDir, output, format *string, indent *int, metricsFile *string, history *bool) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if output != nil {
		c.Output = *output
	}
	if format != nil {
		c.Format = strings.ToLower(*format)
	}
	if indent != nil {
		c.Indent = *indent
	}
	if metricsFile != nil {
		c.MetricsFile = *metricsFile
	}
	if history != nil {
		c.History.Enabled = *history
	}
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid format %q, must be one of: json, yaml", c.Format)
	}

	if c.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	if c.Indent < 0 {
		return fmt.Errorf("indent must be >= 0, got %d", c.Indent)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must be >= 0, got %v", c.LockTimeout)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	for i, r := range c.Routes {
		if strings.TrimSpace(r.Route) == "" {
			return fmt.Errorf("routes[%d]: route is required", i)
		}
		if strings.TrimSpace(r.Event) == "" {
			return fmt.Errorf("routes[%d] (%s): event is required", i, r.Route)
		}
	}

	return nil
}
