// Package instructions holds the system instructions for the three pipeline stages.
// Defaults are embedded; an optional YAML file may override individual stages.
package instructions

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"promptarchitect/pkg/logx"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Set is one complete set of stage instructions.
type Set struct {
	Drafter   string `yaml:"drafter"`
	Evaluator string `yaml:"evaluator"`
	Refiner   string `yaml:"refiner"`
}

// Defaults returns the embedded instruction set.
func Defaults() Set {
	var s Set
	if err := yaml.Unmarshal(defaultsYAML, &s); err != nil {
		panic(fmt.Sprintf("embedded instructions are invalid: %v", err))
	}
	return s
}

// Merge returns base with every non-blank field of override applied.
func Merge(base, override Set) Set {
	if strings.TrimSpace(override.Drafter) != "" {
		base.Drafter = override.Drafter
	}
	if strings.TrimSpace(override.Evaluator) != "" {
		base.Evaluator = override.Evaluator
	}
	if strings.TrimSpace(override.Refiner) != "" {
		base.Refiner = override.Refiner
	}
	return base
}

// LoadFile reads an override file and merges it over the defaults.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("failed to read instructions file %s: %w", path, err)
	}

	var override Set
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && !errors.Is(err, io.EOF) {
		return Set{}, fmt.Errorf("failed to parse instructions file %s: %w", path, err)
	}
	return Merge(Defaults(), override), nil
}

// Store holds the active instruction set and swaps it atomically on reload.
type Store struct {
	logger  *logx.Logger
	path    string
	current Set
	mu      sync.RWMutex
}

// NewStore creates a store from the defaults, applying the override file when path is set.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		current: Defaults(),
		logger:  logx.NewLogger("instructions"),
	}
	if path == "" {
		return s, nil
	}
	set, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.current = set
	s.logger.Info("📜 Loaded instruction overrides from %s", path)
	return s, nil
}

// NewStaticStore returns a store that always serves set.
func NewStaticStore(set Set) *Store {
	return &Store{current: set, logger: logx.NewLogger("instructions")}
}

// Current returns the active set.
func (s *Store) Current() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Path returns the override file path, or "".
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the override file. On failure the last good set stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	set, err := LoadFile(s.path)
	if err != nil {
		s.logger.Warn("⚠️ Instruction reload failed, keeping previous set: %v", err)
		return err
	}
	s.mu.Lock()
	s.current = set
	s.mu.Unlock()
	s.logger.Info("🔄 Reloaded instructions from %s", s.path)
	return nil
}
