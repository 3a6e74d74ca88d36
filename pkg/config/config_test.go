package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	t.Setenv(EnvModel, "")
	dir := t.TempDir()

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.Model != ModelGemini3Pro {
		t.Errorf("Expected default model %s, got %s", ModelGemini3Pro, cfg.Model)
	}
	if cfg.Pipeline.StageTimeout != DefaultStageTimeout {
		t.Errorf("Expected stage timeout %s, got %s", DefaultStageTimeout, cfg.Pipeline.StageTimeout)
	}
	if cfg.Pipeline.Validation != ValidationShape {
		t.Errorf("Expected shape validation by default, got %s", cfg.Pipeline.Validation)
	}
	if cfg.Pipeline.Temperature == nil || *cfg.Pipeline.Temperature != DefaultTemperature {
		t.Errorf("Expected default temperature %v, got %v", DefaultTemperature, cfg.Pipeline.Temperature)
	}
	if cfg.Resilience.Retry.MaxAttempts != 1 {
		t.Errorf("Expected retries disabled by default, got %d attempts", cfg.Resilience.Retry.MaxAttempts)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled for a new config")
	}
	if cfg.Journal.Enabled {
		t.Error("Expected journal disabled by default")
	}

	if _, err := os.Stat(filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)); err != nil {
		t.Errorf("Expected config file to be written: %v", err)
	}
}

func TestLoadConfigKeepsUserValues(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	t.Setenv(EnvModel, "")
	dir := t.TempDir()

	raw := map[string]any{
		"schema_version": SchemaVersion,
		"model":          "claude-sonnet-4-5",
		"pipeline": map[string]any{
			"validation":    "strict",
			"stage_timeout": int64(30 * time.Second),
			"temperature":   0,
		},
		"journal": map[string]any{"enabled": true},
	}
	writeConfig(t, dir, raw)

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg, _ := GetConfig()

	if cfg.Model != ModelClaudeSonnet4 {
		t.Errorf("Expected model from file, got %s", cfg.Model)
	}
	if cfg.Pipeline.Validation != ValidationStrict {
		t.Errorf("Expected strict validation, got %s", cfg.Pipeline.Validation)
	}
	if cfg.Pipeline.StageTimeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %s", cfg.Pipeline.StageTimeout)
	}
	if cfg.Pipeline.Temperature == nil || *cfg.Pipeline.Temperature != 0 {
		t.Errorf("Expected explicit zero temperature kept, got %v", cfg.Pipeline.Temperature)
	}
	if cfg.Pipeline.MaxTokens != 0 {
		t.Errorf("Expected no output limit by default, got %d", cfg.Pipeline.MaxTokens)
	}
	if !cfg.Journal.Enabled {
		t.Error("Expected journal enabled from file")
	}
	if got := JournalPath(&cfg); got != filepath.Join(dir, ProjectConfigDir, JournalFilename) {
		t.Errorf("Unexpected journal path %s", got)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	t.Setenv(EnvModel, "")

	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"unknown model", map[string]any{"model": "mystery-9000"}, "unknown model"},
		{"bad validation", map[string]any{"pipeline": map[string]any{"validation": "lenient"}}, "pipeline.validation"},
		{"bad port", map[string]any{"webui": map[string]any{"port": 70000}}, "webui.port"},
		{"hot temperature", map[string]any{"pipeline": map[string]any{"temperature": 2.5}}, "pipeline.temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.raw)
			err := LoadConfig(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigUnparseable(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err == nil {
		t.Fatal("Expected parse error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Error("Unparseable config must not be overwritten")
	}
}

func TestModelEnvOverride(t *testing.T) {
	t.Cleanup(func() { SetConfigForTesting(nil) })
	t.Setenv(EnvModel, "llama3.2")
	dir := t.TempDir()

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg, _ := GetConfig()
	if cfg.Model != "llama3.2" {
		t.Errorf("Expected env override, got %s", cfg.Model)
	}

	onDisk, err := loadConfigFromFile(filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename))
	if err != nil {
		t.Fatal(err)
	}
	if onDisk.Model != ModelGemini3Pro {
		t.Errorf("Env override must not be persisted, file has %s", onDisk.Model)
	}
}

func TestGetConfigBeforeLoad(t *testing.T) {
	SetConfigForTesting(nil)
	if _, err := GetConfig(); err == nil {
		t.Error("Expected error before LoadConfig")
	}
}

func writeConfig(t *testing.T, dir string, raw map[string]any) {
	t.Helper()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}
