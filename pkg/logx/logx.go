// Package logx provides structured logging functionality with context-aware debug logging.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TimestampFormat is the layout used for every log line and buffered entry.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

type Logger struct {
	component string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Domains map[string]bool // Which domains to enable debug for (nil = all)
	Enabled bool
}

// LogEntry represents a structured log entry for the web UI.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

// InMemoryLogBuffer stores recent log entries for the web UI.
type InMemoryLogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

type componentKey struct{}

//nolint:gochecknoglobals // Process-wide logging configuration
var (
	debugConfig = &DebugConfig{}
	debugMutex  sync.RWMutex

	logWriter     io.Writer // nil means stderr
	logWriterLock sync.RWMutex

	logBuffer = NewInMemoryLogBuffer(1000)
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG=1|true and DEBUG_DOMAINS=a,b from the environment.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = parseDomains(strings.Split(domains, ","))
	}
}

func parseDomains(domains []string) map[string]bool {
	if len(domains) == 0 {
		return nil
	}
	parsed := make(map[string]bool, len(domains))
	for _, domain := range domains {
		if d := strings.TrimSpace(domain); d != "" {
			parsed[d] = true
		}
	}
	return parsed
}

// NewLogger creates a logger that tags every line with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all log output. Passing nil restores stderr.
// The terminal UI uses this to keep log lines off the alternate screen.
func SetOutput(w io.Writer) {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	logWriter = w
}

func writer() io.Writer {
	logWriterLock.RLock()
	defer logWriterLock.RUnlock()
	if logWriter == nil {
		return os.Stderr
	}
	return logWriter
}

// SetDebug enables or disables debug output globally.
func SetDebug(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Enabled = enabled
}

// SetDebugDomains configures which domains should have debug logging enabled.
// An empty list enables every domain.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugConfig.Domains = parseDomains(domains)
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// NewInMemoryLogBuffer creates a ring of at most maxSize entries.
func NewInMemoryLogBuffer(maxSize int) *InMemoryLogBuffer {
	return &InMemoryLogBuffer{
		entries: make([]LogEntry, 0, 64),
		maxSize: maxSize,
	}
}

// AddLogEntry adds a log entry to the in-memory buffer.
func (b *InMemoryLogBuffer) AddLogEntry(entry *LogEntry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// GetLogEntries returns a copy of current log entries, optionally filtered.
func (b *InMemoryLogBuffer) GetLogEntries(domain string, since time.Time) []LogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	filtered := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		entry := &b.entries[i]
		if domain != "" && !strings.EqualFold(entry.Domain, domain) && !strings.EqualFold(entry.Component, domain) {
			continue
		}
		if !since.IsZero() {
			entryTime, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil || entryTime.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *entry)
	}
	return filtered
}

// GetRecentLogEntries returns recent log entries for the web UI.
// domain matches either the debug domain or the component name.
func GetRecentLogEntries(domain string, since time.Time) []LogEntry {
	return logBuffer.GetLogEntries(domain, since)
}

func emit(component string, level Level, domain, message string) {
	timestamp := time.Now().UTC().Format(TimestampFormat)
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp, component, level, message)
	_, _ = io.WriteString(writer(), line)

	logBuffer.AddLogEntry(&LogEntry{
		Timestamp: timestamp,
		Component: component,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
	})
}

func (l *Logger) log(level Level, format string, args ...any) {
	emit(l.component, level, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the name this logger tags its lines with.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger for a different component sharing the same output.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// ContextWithComponent attaches a component name used by the package-level Debug.
func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

// Debug logs a debug message with context and domain filtering.
//
// Usage examples:
//
//	logx.Debug(ctx, "chain", "drafter contents: %d bytes", n)
//	logx.Debug(ctx, "orchestrator", "run %s advanced to %s", runID, stage)
//
// Environment variable control:
//
//	DEBUG=1                             # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=chain         # Enable debug only for the chain domain
//	DEBUG=1 DEBUG_DOMAINS=chain,webui   # Enable debug for multiple domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	component := "unknown"
	if ctx != nil {
		if c, ok := ctx.Value(componentKey{}).(string); ok && c != "" {
			component = c
		}
	}

	emit(component, LevelDebug, domain, fmt.Sprintf("[%s] %s", domain, fmt.Sprintf(format, args...)))
}

//nolint:gochecknoglobals // Shared default logger for package-level helpers
var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
//
//	if err != nil { return logx.Wrap(err, "open journal") }
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
