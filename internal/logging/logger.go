// Package logging provides categorized structured logging for the Engram
// governance kernel. Every subsystem logs through a named zap logger so log
// output can be filtered per category.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, CLI wiring
	CategoryStore     Category = "store"     // SQLite store and migrations
	CategoryRetrieval Category = "retrieval" // Dual search, reranking
	CategoryContext   Category = "context"   // Context packing
	CategoryAuth      Category = "auth"      // Trust gate, sessions
	CategoryAPI       Category = "api"       // HTTP surface
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init builds the process-wide logger. Verbose enables debug level.
func Init(verbose bool) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	base = logger
	mu.Unlock()
	return nil
}

// SetLogger swaps the backing logger. Tests use this with zaptest or Nop.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	mu.Unlock()
}

// L returns the sugared logger for a category.
func L(cat Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sugar().Named(string(cat))
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Timer logs the duration of an operation on Stop.
type Timer struct {
	cat   Category
	op    string
	start time.Time
}

// StartTimer begins timing an operation for the given category.
func StartTimer(cat Category, op string) *Timer {
	return &Timer{cat: cat, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	L(t.cat).Debugw("operation complete", "op", t.op, "elapsed", time.Since(t.start))
}
