package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogDir != filepath.Join(".testmeta", "logs") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Output != filepath.Join(".testmeta", "meta.json") {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if cfg.Indent != 4 {
		t.Errorf("Indent = %d, want 4", cfg.Indent)
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v, want 30s", cfg.LockTimeout)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

// TestLoadConfigValidFile tests loading a complete YAML config file
func TestLoadConfigValidFile(t *testing.T) {
	path := writeConfig(t, `log_level: debug
log_dir: /tmp/logs
output: out/meta.yaml
format: YAML
indent: 2
lock_timeout: 5s
metrics_file: out/testmeta.prom
history:
  enabled: true
  db_path: /tmp/history.db
routes:
  - route: "{id}.tags"
    event: tag
    array: true
  - route: session.build
    event: build
    default: unknown
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.LogDir != "/tmp/logs" {
		t.Errorf("LogDir = %q, want /tmp/logs", cfg.LogDir)
	}
	if cfg.Output != "out/meta.yaml" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Format != "yaml" {
		t.Errorf("Format = %q, want yaml", cfg.Format)
	}
	if cfg.Indent != 2 {
		t.Errorf("Indent = %d, want 2", cfg.Indent)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.MetricsFile != "out/testmeta.prom" {
		t.Errorf("MetricsFile = %q", cfg.MetricsFile)
	}
	if !cfg.History.Enabled || cfg.History.DBPath != "/tmp/history.db" {
		t.Errorf("History = %+v", cfg.History)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("len(Routes) = %d, want 2", len(cfg.Routes))
	}
	if cfg.Routes[0].Route != "{id}.tags" || cfg.Routes[0].Event != "tag" || !cfg.Routes[0].Array {
		t.Errorf("Routes[0] = %+v", cfg.Routes[0])
	}
	if cfg.Routes[1].Default != "unknown" {
		t.Errorf("Routes[1].Default = %v, want unknown", cfg.Routes[1].Default)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

// TestLoadConfigFileNotExists tests fallback to defaults when file doesn't exist
func TestLoadConfigFileNotExists(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() should not error on missing file, got: %v", err)
	}
	if cfg.Output != DefaultConfig().Output {
		t.Errorf("Output = %q, want default", cfg.Output)
	}
}

// TestLoadConfigPartial verifies omitted keys keep their defaults and explicit zeros win
func TestLoadConfigPartial(t *testing.T) {
	path := writeConfig(t, `indent: 0
history:
  db_path: custom.db
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Indent != 0 {
		t.Errorf("Indent = %d, want explicit 0", cfg.Indent)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.LogLevel)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled changed without being set")
	}
	if cfg.History.DBPath != "custom.db" {
		t.Errorf("History.DBPath = %q, want custom.db", cfg.History.DBPath)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "log_level: [unclosed", "failed to parse config file"},
		{"bad duration", "lock_timeout: soon", "invalid lock_timeout format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".testmeta"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".testmeta", "config.yaml"), []byte("format: yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromDir(dir)
	if err != nil {
		t.Fatalf("LoadConfigFromDir() error = %v", err)
	}
	if cfg.Format != "yaml" {
		t.Errorf("Format = %q, want yaml", cfg.Format)
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	level := "warn"
	output := "x.json"
	format := "YAML"
	indent := 8
	history := true

	cfg.MergeWithFlags(&level, nil, &output, &format, &indent, nil, &history)

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.LogDir != DefaultConfig().LogDir {
		t.Errorf("LogDir changed by nil flag: %q", cfg.LogDir)
	}
	if cfg.Output != "x.json" {
		t.Errorf("Output = %q", cfg.Output)
	}
	if cfg.Format != "yaml" {
		t.Errorf("Format = %q, want yaml", cfg.Format)
	}
	if cfg.Indent != 8 {
		t.Errorf("Indent = %d, want 8", cfg.Indent)
	}
	if cfg.MetricsFile != "" {
		t.Errorf("MetricsFile changed by nil flag: %q", cfg.MetricsFile)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"bad format", func(c *Config) { c.Format = "xml" }, "invalid format"},
		{"empty output", func(c *Config) { c.Output = "" }, "output cannot be empty"},
		{"negative indent", func(c *Config) { c.Indent = -1 }, "indent must be >= 0"},
		{"negative lock timeout", func(c *Config) { c.LockTimeout = -time.Second }, "lock_timeout must be >= 0"},
		{"history without db", func(c *Config) {
			c.History.Enabled = true
			c.History.DBPath = ""
		}, "history.db_path cannot be empty"},
		{"disabled history without db", func(c *Config) { c.History.DBPath = "" }, ""},
		{"route without path", func(c *Config) {
			c.Routes = []RouteConfig{{Event: "tag"}}
		}, "routes[0]: route is required"},
		{"route without event", func(c *Config) {
			c.Routes = []RouteConfig{{Route: "session.x", Event: "x"}, {Route: "{id}.tags"}}
		}, "routes[1] ({id}.tags): event is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
