// Package logging provides category-scoped structured logging for holograph.
// Each subsystem logs through a named zap logger; Init configures the shared
// core once at startup. Before Init, loggers are no-ops so that library code
// can log unconditionally.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryConfig    Category = "config"
	CategoryStore     Category = "store"
	CategoryVector    Category = "vector"
	CategoryRetrieval Category = "retrieval"
	CategoryReview    Category = "review"
	CategoryIngest    Category = "ingest"
	CategoryWorker    Category = "worker"
	CategoryServer    Category = "server"
	CategoryMetrics   Category = "metrics"
	CategoryBreaker   Category = "breaker"
	CategoryAudit     Category = "audit"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Options configures the logging core.
type Options struct {
	Level      string // debug, info, warn, error
	JSONFormat bool
}

// Init installs the process-wide logging core. Safe to call once at startup;
// tests may call it repeatedly.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return err
		}
	}

	cfg := zap.NewProductionConfig()
	if !opts.JSONFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return err
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// SetLogger replaces the root logger. Used by tests to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// L returns the named logger for a category.
func L(c Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(c))
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
