package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"golang.org/x/term"

	"promptarchitect/pkg/chain"
	"promptarchitect/pkg/config"
	"promptarchitect/pkg/instructions"
	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llm/factory"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/metrics"
	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/prompt"
)

const appName = "promptarchitect"

// newClient builds the model client. Tests replace it to avoid network access.
//
//nolint:gochecknoglobals // Swapped in tests
var newClient = func(cfg config.Config, recorder metrics.Recorder) (llm.LLMClient, error) {
	return factory.New(cfg, recorder).CreateClient()
}

// stack is everything a command needs to run the pipeline.
type stack struct {
	controller   *orchestrator.Controller
	journal      *journal.Journal
	instructions *instructions.Store
	registry     *prometheus.Registry
	logger       *logx.Logger
}

// stackOptions selects the optional parts of the stack.
type stackOptions struct {
	metrics bool
	journal bool
}

// loadProject loads the project config and unlocks the secrets file when one exists.
func loadProject(projectDir string) (config.Config, error) {
	if err := config.LoadConfig(projectDir); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := unlockSecrets(projectDir); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config: %w", err)
	}
	return cfg, nil
}

// unlockSecrets decrypts the secrets file with PROMPTARCHITECT_PASSWORD, or asks for the
// password on an interactive terminal. Without either, credentials come from the environment.
func unlockSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}
	password := os.Getenv(config.EnvPassword)
	if password == "" {
		if !term.IsTerminal(int(stdin.Fd())) {
			config.LogInfo("⚠️  Secrets file present but %s is not set; using environment credentials", config.EnvPassword)
			return nil
		}
		pw, err := readSecret(stdin, os.Stderr, "Project password: ")
		if err != nil {
			return err
		}
		password = pw
	}
	if err := config.LoadSecrets(projectDir, password); err != nil {
		return fmt.Errorf("failed to unlock secrets: %w", err)
	}
	return nil
}

// readSecret reads one line without echo from a terminal, or as plain text from a pipe.
func readSecret(in *os.File, out io.Writer, label string) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(out, label)
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		value := string(b)
		for i := range b {
			b[i] = 0
		}
		return value, nil
	}
	return readLine(in)
}

// readLine reads up to the next newline one byte at a time, so later reads from the same
// pipe see the following lines.
func readLine(r io.Reader) (string, error) {
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			line.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
	}
	return strings.TrimRight(line.String(), "\r"), nil
}

// buildStack wires the model client, instructions, journal and metrics into a controller.
func buildStack(cfg config.Config, opts stackOptions) (*stack, error) {
	s := &stack{logger: logx.NewLogger("main")}

	var recorder metrics.Recorder = metrics.Nop()
	if opts.metrics && cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			versioncollector.NewCollector(appName),
		)
		recorder = metrics.NewPrometheusRecorder(s.registry)
	}

	client, err := newClient(cfg, recorder)
	if err != nil {
		return nil, err
	}

	store, err := instructions.NewStore(config.InstructionsPath(&cfg))
	if err != nil {
		return nil, err
	}
	s.instructions = store

	validation, err := prompt.ParseValidationMode(cfg.Pipeline.Validation)
	if err != nil {
		return nil, err
	}
	pipeline := chain.New(client, store, chain.Options{
		Validation:  validation,
		MaxTokens:   cfg.Pipeline.MaxTokens,
		Temperature: cfg.Pipeline.Temperature,
	})

	controllerOpts := []orchestrator.Option{orchestrator.WithRecorder(recorder)}
	if opts.journal && cfg.Journal.Enabled {
		j, err := journal.Open(config.JournalPath(&cfg))
		if err != nil {
			return nil, err
		}
		s.journal = j
		controllerOpts = append(controllerOpts, orchestrator.WithJournal(j))
	}

	s.controller = orchestrator.New(pipeline, controllerOpts...)
	return s, nil
}

// Close releases the journal.
func (s *stack) Close() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.logger.Warn("Failed to close run journal: %v", err)
	}
}
