package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used by the library.
type Logger interface {
	Info(msg string, obj any)
	Warn(msg string, obj any)
	Debug(msg string, obj any)
	Error(msg string, obj any)
}

// NopLogger discards all log messages.
type NopLogger struct{}

func (NopLogger) Info(string, any)  {}
func (NopLogger) Warn(string, any)  {}
func (NopLogger) Debug(string, any) {}
func (NopLogger) Error(string, any) {}

type zapLogger struct {
	z *zap.Logger
}

// NewZap builds a console logger on stderr. Debug records are kept only when verbose is set.
func NewZap(verbose bool) (Logger, func() error, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return FromZap(z), z.Sync, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return zapLogger{z: z}
}

func fields(obj any) []zap.Field {
	if obj == nil {
		return nil
	}
	if m, ok := obj.(map[string]any); ok {
		out := make([]zap.Field, 0, len(m))
		for k, v := range m {
			out = append(out, zap.Any(k, v))
		}
		return out
	}
	return []zap.Field{zap.Any("obj", obj)}
}

func (l zapLogger) Info(msg string, obj any)  { l.z.Info(msg, fields(obj)...) }
func (l zapLogger) Warn(msg string, obj any)  { l.z.Warn(msg, fields(obj)...) }
func (l zapLogger) Debug(msg string, obj any) { l.z.Debug(msg, fields(obj)...) }
func (l zapLogger) Error(msg string, obj any) { l.z.Error(msg, fields(obj)...) }

// Debug writes a debug log when enabled and logger is non-nil.
func Debug(enabled bool, logger Logger, msg string, obj any) {
	if !enabled || logger == nil {
		return
	}
	logger.Debug(msg, obj)
}

// Debugf is a compatibility helper for format-style debug logging.
func Debugf(enabled bool, logger Logger, format string, args ...any) {
	Debug(enabled, logger, fmt.Sprintf(format, args...), nil)
}

// Warn writes a warning log when logger is non-nil.
func Warn(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Warn(msg, obj)
}

// Error writes an error log when logger is non-nil.
func Error(logger Logger, msg string, obj any) {
	if logger == nil {
		return
	}
	logger.Error(msg, obj)
}
