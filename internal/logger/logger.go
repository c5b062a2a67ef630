// Package logger wraps zap with the small field-helper surface used across the service.
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field.
type Field = zap.Field

// Logger is a named structured logger.
type Logger struct {
	zl *zap.Logger
}

// New builds a logger for the given level ("debug", "info", "warn", "error")
// and format ("json" or "console").
func New(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zl: l.zl.Named(name)}
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zl.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field) { l.zl.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field) { l.zl.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zl.Error(msg, fields...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func String(key, val string) Field { return zap.String(key, val) }
func Int(key string, val int) Field { return zap.Int(key, val) }
func Bool(key string, val bool) Field { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) Field { return zap.Time(key, val) }
func Error(err error) Field { return zap.Error(err) }
