// Package logging provides a thin wrapper around zap for structured logging.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is a type alias for key-value pairs attached to a log entry.
type Fields map[string]any

// Logger wraps zap.Logger behind a simplified API.
type Logger struct {
	logger *zap.Logger
}

// Config controls logger construction.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Unknown values
	// fall back to info.
	Level string

	// Development switches to the console encoder with caller annotations.
	Development bool
}

// New creates a logger with the given configuration.
func New(config Config) (*Logger, error) {
	level := zapcore.InfoLevel
	switch config.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	zapConfig := zap.NewProductionConfig()
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger: zapLogger}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

// With returns a logger that attaches the given fields to every entry.
func (l *Logger) With(fields Fields) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(zapFields(fields)...)}
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.logger.Debug(msg, collect(fields)...)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.logger.Info(msg, collect(fields)...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.logger.Warn(msg, collect(fields)...)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.logger.Error(msg, collect(fields)...)
}

// Fatal logs a message at fatal level and exits.
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.logger.Fatal(msg, collect(fields)...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

func zapFields(fields Fields) []zap.Field {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func collect(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	return zapFields(fields[0])
}
