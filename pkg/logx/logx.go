// Package logx provides leveled logging with per-component identifiers and
// environment-driven debug filtering.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes timestamped, component-tagged log lines to stderr.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies a log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugConfig controls debug logging behavior.
type debugSettings struct {
	Enabled bool
	Domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // process-wide debug switches, set once from env
var (
	debugConfig = &debugSettings{}
	debugMutex  sync.RWMutex
)

//nolint:gochecknoinits // env var initialization
func init() {
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
//
//	DEBUG=1                         # enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=store,audit  # enable debug for specific domains
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // stderr for CLI compatibility
	}
}

// SetDebug configures debug logging programmatically, overriding the env vars.
func SetDebug(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil
	} else {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range domains {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// IsDebugEnabled returns whether debug logging is enabled at all.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a domain.
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

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))
}

// Debug logs a debug message when debug is enabled for this logger's component.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledForDomain(l.component) {
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

// GetComponent returns the logger's component tag.
func (l *Logger) GetComponent() string {
	return l.component
}

// WithComponent returns a new logger with a different component tag.
func (l *Logger) WithComponent(component string) *Logger {
	return NewLogger(component)
}
