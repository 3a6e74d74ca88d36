// Package config provides configuration loading, validation, and management for promptarchitect.
// The configuration lives in <projectDir>/.promptarchitect/config.json and is held in a
// process-wide singleton; callers read copies via GetConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptarchitect/pkg/logx"
)

// Project config constants.
const (
	ProjectConfigDir      = ".promptarchitect"
	ProjectConfigFilename = "config.json"
	SchemaVersion         = "1.0"
	JournalFilename       = "journal.db"
)

// Report validation modes applied to the evaluator's output.
const (
	// ValidationTrust uses the report verbatim.
	ValidationTrust = "trust"
	// ValidationShape requires criteriaScores to be present and non-empty.
	ValidationShape = "shape"
	// ValidationStrict requires all 35 criteria, scores in range and a consistent total.
	ValidationStrict = "strict"
)

// Environment overrides.
const (
	EnvModel    = "PROMPTARCHITECT_MODEL"
	EnvPassword = "PROMPTARCHITECT_PASSWORD"
)

// Defaults.
const (
	DefaultStageTimeout       = 60 * time.Second
	DefaultTemperature        = 1.0
	DefaultRequestsPerMinute  = 30
	DefaultRateBurst          = 3
	DefaultWebUIHost          = "localhost"
	DefaultWebUIPort          = 8080
	DefaultSubmitsPerMinute   = 6
	DefaultRetryMaxAttempts   = 1
	DefaultRetryInitialDelay  = 500 * time.Millisecond
	DefaultRetryMaxDelay      = 10 * time.Second
	DefaultRetryBackoffFactor = 2.0
)

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...any) {
	getLogger().Info(format, args...)
}

// PipelineConfig controls how each stage talks to the model.
type PipelineConfig struct {
	Validation   string        `json:"validation"`    // trust | shape | strict
	StageTimeout time.Duration `json:"stage_timeout"` // Per model call
	MaxTokens    int           `json:"max_tokens"` // 0 leaves the model's own output limit
	Temperature  *float32      `json:"temperature,omitempty"` // Unset uses DefaultTemperature
}

// RetryConfig defines retry behavior for model calls. MaxAttempts of 1 disables retries.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// RateLimitConfig bounds outbound model calls.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	Burst             int `json:"burst"`
}

// ResilienceConfig groups the middleware settings.
type ResilienceConfig struct {
	Retry     RetryConfig     `json:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// WebUIConfig configures the HTTP server.
type WebUIConfig struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	SubmitsPerMinute int    `json:"submits_per_minute"`
}

// JournalConfig configures the optional sqlite run journal.
type JournalConfig struct {
	Path    string `json:"path,omitempty"` // Defaults to <project>/.promptarchitect/journal.db
	Enabled bool   `json:"enabled"`
}

// InstructionsConfig points at an optional YAML file overriding the stage instructions.
type InstructionsConfig struct {
	Path  string `json:"path,omitempty"`
	Watch bool   `json:"watch"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// Config is the complete on-disk configuration.
type Config struct {
	SchemaVersion string             `json:"schema_version"`
	Model         string             `json:"model"`
	Instructions  InstructionsConfig `json:"instructions"`
	Journal       JournalConfig      `json:"journal"`
	WebUI         WebUIConfig        `json:"webui"`
	Pipeline      PipelineConfig     `json:"pipeline"`
	Resilience    ResilienceConfig   `json:"resilience"`
	Metrics       MetricsConfig      `json:"metrics"`
}

// GetConfig returns the current global config BY VALUE.
// Must call LoadConfig (or SetConfigForTesting) first.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// GetProjectDir returns the directory passed to LoadConfig.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// SetConfigForTesting sets the global config for testing purposes. Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// LoadConfig loads <projectDir>/.promptarchitect/config.json into the global singleton.
//
// Behavior:
// - Missing file: creates a new config with defaults and saves it
// - Existing file: loads, applies defaults for missing fields, validates and saves it back
// - Unparseable file: returns an error to avoid overwriting user changes
//
// PROMPTARCHITECT_MODEL overrides the model for this process without being saved.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	var loaded *Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("📝 Config file not found, creating new config at %s", configPath)
		loaded = DefaultConfig()
	} else {
		getLogger().Info("📝 Loading config from %s", configPath)
		loaded, err = loadConfigFromFile(configPath)
		if err != nil {
			return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
		}
		applyDefaults(loaded)
	}

	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := SaveConfig(loaded, projectDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if model := os.Getenv(EnvModel); model != "" {
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("%s: %w", EnvModel, err)
		}
		getLogger().Info("Model overridden by %s: %s", EnvModel, model)
		loaded.Model = model
	}

	config = loaded
	getLogger().Info("✅ Config loaded and validated successfully (model: %s)", config.Model)
	return nil
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
	}
	return &cfg, nil
}

// SaveConfig saves config to <projectDir>/.promptarchitect/config.json.
func SaveConfig(cfg *Config, dir string) error {
	configPath := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values. Booleans are left as loaded; Metrics defaults on only for new configs.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
		cfg.Metrics.Enabled = true
		cfg.Resilience.Retry.Jitter = true
	}
	if cfg.Model == "" {
		cfg.Model = ModelGemini3Pro
	}

	p := &cfg.Pipeline
	if p.Validation == "" {
		p.Validation = ValidationShape
	}
	if p.StageTimeout == 0 {
		p.StageTimeout = DefaultStageTimeout
	}
	if p.Temperature == nil {
		t := float32(DefaultTemperature)
		p.Temperature = &t
	}

	r := &cfg.Resilience.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultRetryMaxAttempts
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = DefaultRetryInitialDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = DefaultRetryMaxDelay
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = DefaultRetryBackoffFactor
	}

	rl := &cfg.Resilience.RateLimit
	if rl.RequestsPerMinute == 0 {
		rl.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if rl.Burst == 0 {
		rl.Burst = DefaultRateBurst
	}

	w := &cfg.WebUI
	if w.Host == "" {
		w.Host = DefaultWebUIHost
	}
	if w.Port == 0 {
		w.Port = DefaultWebUIPort
	}
	if w.SubmitsPerMinute == 0 {
		w.SubmitsPerMinute = DefaultSubmitsPerMinute
	}
}

func validateConfig(cfg *Config) error {
	if _, err := GetModelProvider(cfg.Model); err != nil {
		return err
	}

	switch cfg.Pipeline.Validation {
	case ValidationTrust, ValidationShape, ValidationStrict:
	default:
		return fmt.Errorf("pipeline.validation must be one of %q, %q, %q (got %q)",
			ValidationTrust, ValidationShape, ValidationStrict, cfg.Pipeline.Validation)
	}

	if cfg.Pipeline.StageTimeout < time.Second {
		return fmt.Errorf("pipeline.stage_timeout must be at least 1s (got %s)", cfg.Pipeline.StageTimeout)
	}
	if cfg.Pipeline.MaxTokens < 0 {
		return fmt.Errorf("pipeline.max_tokens must not be negative")
	}
	if t := cfg.Pipeline.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("pipeline.temperature must be within [0, 2] (got %.2f)", *t)
	}
	if cfg.Resilience.Retry.MaxAttempts < 1 {
		return fmt.Errorf("resilience.retry.max_attempts must be at least 1")
	}
	if cfg.Resilience.RateLimit.RequestsPerMinute < 0 || cfg.Resilience.RateLimit.Burst < 0 {
		return fmt.Errorf("resilience.rate_limit values must not be negative")
	}
	if cfg.WebUI.Port < 1 || cfg.WebUI.Port > 65535 {
		return fmt.Errorf("webui.port out of range: %d", cfg.WebUI.Port)
	}
	return nil
}

// JournalPath resolves the journal database location.
func JournalPath(cfg *Config) string {
	if cfg.Journal.Path != "" {
		if filepath.IsAbs(cfg.Journal.Path) {
			return cfg.Journal.Path
		}
		return filepath.Join(GetProjectDir(), cfg.Journal.Path)
	}
	return filepath.Join(GetProjectDir(), ProjectConfigDir, JournalFilename)
}

// InstructionsPath resolves the instruction override file, or "" when none is configured.
func InstructionsPath(cfg *Config) string {
	if cfg.Instructions.Path == "" || filepath.IsAbs(cfg.Instructions.Path) {
		return cfg.Instructions.Path
	}
	return filepath.Join(GetProjectDir(), cfg.Instructions.Path)
}

// GetWebUIPassword returns the web UI password:
// 1. Project password from secrets decryption (in memory)
// 2. PROMPTARCHITECT_PASSWORD environment variable
// 3. Empty string, meaning the web UI runs without authentication.
func GetWebUIPassword() string {
	if password := GetProjectPassword(); password != "" {
		return password
	}
	return os.Getenv(EnvPassword)
}
