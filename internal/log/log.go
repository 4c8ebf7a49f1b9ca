// Package log wraps zap with context-aware logging. All log calls take a
// context so registered hooks can attach request-scoped fields (trace id,
// operation name) to every record.
package log

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the global logger.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn or error.
	Level string `conf:"level" yaml:"level" json:"level"`
	// Encoding selects the output encoding: console or json.
	Encoding string `conf:"encoding" yaml:"encoding" json:"encoding"`
}

var (
	mu     sync.RWMutex
	logger = newLogger(Config{Level: "info", Encoding: "console"})
)

func newLogger(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}

	if zc.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}

	return l
}

// Setup replaces the global logger with one built from cfg.
func Setup(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	logger = newLogger(cfg)
}

// SetLogger replaces the global logger, used by tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return logger
}

func applyHooks(ctx context.Context, msg string, fields []Field) []Field {
	for _, hook := range hooks() {
		fields = append(fields, hook.Apply(ctx, msg)...)
	}

	return fields
}

// Debug logs a debug message with context fields.
func Debug(ctx context.Context, msg string, fields ...Field) {
	current().Debug(msg, applyHooks(ctx, msg, fields)...)
}

// Info logs an info message with context fields.
func Info(ctx context.Context, msg string, fields ...Field) {
	current().Info(msg, applyHooks(ctx, msg, fields)...)
}

// Warn logs a warning message with context fields.
func Warn(ctx context.Context, msg string, fields ...Field) {
	current().Warn(msg, applyHooks(ctx, msg, fields)...)
}

// Error logs an error message with context fields.
func Error(ctx context.Context, msg string, fields ...Field) {
	current().Error(msg, applyHooks(ctx, msg, fields)...)
}

// Sync flushes buffered records.
func Sync() error {
	return current().Sync()
}
