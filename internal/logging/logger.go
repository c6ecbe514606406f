// Package logging provides config-driven categorized logging for ledgerdev.
// Every category is a named child of one zap logger; disabled categories get a no-op logger.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategorySandbox  Category = "sandbox"  // Allowlist and argument sanitization
	CategoryResolver Category = "resolver" // Binary discovery and path cache
	CategoryExecutor Category = "executor" // External process execution
	CategoryNode     Category = "node"     // Local chain daemon lifecycle
	CategoryAudit    Category = "audit"    // Audit store
	CategoryAPI      Category = "api"      // HTTP surface
)

// Options mirrors config.LoggingConfig to keep this package free of config imports.
type Options struct {
	Level      string
	Format     string // json or console
	File       string
	Categories map[string]bool
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	options Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from options.
// Safe to call more than once; existing category loggers are rebuilt.
func Initialize(opts Options) error {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Format != "json" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zcfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		zcfg.OutputPaths = []string{opts.File}
	}

	built, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	replace(built, opts)
	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s", level, zcfg.Encoding)
	return nil
}

// UseLogger installs an existing zap logger as the root (tests use zaptest/observer).
// It returns a function restoring the previous root.
func UseLogger(l *zap.Logger) func() {
	mu.RLock()
	prevRoot, prevOpts := root, options
	mu.RUnlock()

	replace(l, Options{})
	return func() { replace(prevRoot, prevOpts) }
}

func replace(l *zap.Logger, opts Options) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	options = opts
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if options.Categories == nil {
		return true
	}
	enabled, exists := options.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    root.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Sync flushes the root logger.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Sandbox logs to the sandbox category
func Sandbox(format string, args ...interface{}) { Get(CategorySandbox).Info(format, args...) }

// SandboxWarn logs a warning to the sandbox category
func SandboxWarn(format string, args ...interface{}) { Get(CategorySandbox).Warn(format, args...) }

// Resolver logs to the resolver category
func Resolver(format string, args ...interface{}) { Get(CategoryResolver).Info(format, args...) }

// ResolverDebug logs debug to the resolver category
func ResolverDebug(format string, args ...interface{}) { Get(CategoryResolver).Debug(format, args...) }

// ResolverWarn logs a warning to the resolver category
func ResolverWarn(format string, args ...interface{}) { Get(CategoryResolver).Warn(format, args...) }

// Executor logs to the executor category
func Executor(format string, args ...interface{}) { Get(CategoryExecutor).Info(format, args...) }

// ExecutorDebug logs debug to the executor category
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }

// ExecutorWarn logs a warning to the executor category
func ExecutorWarn(format string, args ...interface{}) { Get(CategoryExecutor).Warn(format, args...) }

// ExecutorError logs an error to the executor category
func ExecutorError(format string, args ...interface{}) { Get(CategoryExecutor).Error(format, args...) }

// Node logs to the node category
func Node(format string, args ...interface{}) { Get(CategoryNode).Info(format, args...) }

// NodeDebug logs debug to the node category
func NodeDebug(format string, args ...interface{}) { Get(CategoryNode).Debug(format, args...) }

// NodeWarn logs a warning to the node category
func NodeWarn(format string, args ...interface{}) { Get(CategoryNode).Warn(format, args...) }

// NodeError logs an error to the node category
func NodeError(format string, args ...interface{}) { Get(CategoryNode).Error(format, args...) }

// Audit logs to the audit category
func Audit(format string, args ...interface{}) { Get(CategoryAudit).Info(format, args...) }

// AuditDebug logs debug to the audit category
func AuditDebug(format string, args ...interface{}) { Get(CategoryAudit).Debug(format, args...) }

// AuditWarn logs a warning to the audit category
func AuditWarn(format string, args ...interface{}) { Get(CategoryAudit).Warn(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Timer measures one operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
