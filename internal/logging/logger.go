// Package logging provides categorized logging for docvet, backed by zap.
// Each subsystem logs under its own category so operators can follow one
// concern (store, workflow, llm) through a shared stream. Call Init once at
// startup; before that, loggers are no-ops so packages can log freely in
// tests.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryGeneral  Category = "general"  // Startup, shutdown, uncategorized
	CategoryRPC      Category = "rpc"      // Dispatcher, registry, transports
	CategoryHTTP     Category = "http"     // HTTP/WebSocket surface
	CategoryStore    Category = "store"    // Database operations
	CategoryIngest   Category = "ingest"   // Validation pipeline
	CategoryRules    Category = "rules"    // Rule manager
	CategoryPrompts  Category = "prompts"  // Prompt loader
	CategoryLLM      Category = "llm"      // Model capability calls
	CategoryEnhance  Category = "enhance"  // Enhancement pipeline
	CategoryWorkflow Category = "workflow" // Workflow engine
	CategoryFileIO   Category = "fileio"   // File reads/writes/walks
	CategoryServer   Category = "server"   // Method handlers
	CategoryClient   Category = "client"   // Client adapters
)

// Logger wraps a zap sugared logger tagged with its category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	root      = zap.NewNop()
	rootMu    sync.RWMutex
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
)

// Init builds the process-wide zap logger. level is one of
// debug/info/warn/error; format is text or json; file, when non-empty,
// redirects output from stderr to that path.
func Init(level, format, file string) error {
	cfg := zap.NewProductionConfig()
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetLogger(logger)
	return nil
}

// SetLogger replaces the process-wide logger. Tests use this to install
// observed or silenced loggers.
func SetLogger(logger *zap.Logger) {
	rootMu.Lock()
	root = logger
	rootMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	rootMu.RLock()
	defer rootMu.RUnlock()
	_ = root.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok = loggers[category]; ok {
		return l
	}

	rootMu.RLock()
	sugar := root.Named(string(category)).Sugar()
	rootMu.RUnlock()

	l = &Logger{category: category, sugar: sugar}
	loggers[category] = l
	return l
}

// Debug logs at debug level in printf style.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs at info level in printf style.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level in printf style.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs at error level in printf style.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(args...)}
}

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

func General(format string, args ...interface{})       { Get(CategoryGeneral).Info(format, args...) }
func GeneralDebug(format string, args ...interface{})  { Get(CategoryGeneral).Debug(format, args...) }
func RPC(format string, args ...interface{})           { Get(CategoryRPC).Info(format, args...) }
func RPCDebug(format string, args ...interface{})      { Get(CategoryRPC).Debug(format, args...) }
func HTTP(format string, args ...interface{})          { Get(CategoryHTTP).Info(format, args...) }
func HTTPDebug(format string, args ...interface{})     { Get(CategoryHTTP).Debug(format, args...) }
func Store(format string, args ...interface{})         { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})    { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{})    { Get(CategoryStore).Error(format, args...) }
func Ingest(format string, args ...interface{})        { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{})   { Get(CategoryIngest).Debug(format, args...) }
func Rules(format string, args ...interface{})         { Get(CategoryRules).Info(format, args...) }
func RulesDebug(format string, args ...interface{})    { Get(CategoryRules).Debug(format, args...) }
func Prompts(format string, args ...interface{})       { Get(CategoryPrompts).Info(format, args...) }
func PromptsDebug(format string, args ...interface{})  { Get(CategoryPrompts).Debug(format, args...) }
func LLM(format string, args ...interface{})           { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{})      { Get(CategoryLLM).Debug(format, args...) }
func LLMError(format string, args ...interface{})      { Get(CategoryLLM).Error(format, args...) }
func Enhance(format string, args ...interface{})       { Get(CategoryEnhance).Info(format, args...) }
func EnhanceDebug(format string, args ...interface{})  { Get(CategoryEnhance).Debug(format, args...) }
func Workflow(format string, args ...interface{})      { Get(CategoryWorkflow).Info(format, args...) }
func WorkflowDebug(format string, args ...interface{}) { Get(CategoryWorkflow).Debug(format, args...) }
func WorkflowError(format string, args ...interface{}) { Get(CategoryWorkflow).Error(format, args...) }
func FileIO(format string, args ...interface{})        { Get(CategoryFileIO).Info(format, args...) }
func FileIODebug(format string, args ...interface{})   { Get(CategoryFileIO).Debug(format, args...) }
func Server(format string, args ...interface{})        { Get(CategoryServer).Info(format, args...) }
func ServerDebug(format string, args ...interface{})   { Get(CategoryServer).Debug(format, args...) }
func Client(format string, args ...interface{})        { Get(CategoryClient).Info(format, args...) }
func ClientDebug(format string, args ...interface{})   { Get(CategoryClient).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
