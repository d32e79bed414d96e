package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *SafeLogger = NewSafeLogger(zap.NewNop())
)

// SafeLogger wraps a zap logger so that calls on an uninitialized logger are no-ops
type SafeLogger struct {
	logger *zap.Logger
}

// NewSafeLogger wraps the given zap logger
func NewSafeLogger(logger *zap.Logger) *SafeLogger {
	return &SafeLogger{logger: logger}
}

// InitLogger initializes the global logger
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.Fields(
			zap.String("service", "app-verification"),
			zap.String("version", "v1"),
		),
	)
	if err != nil {
		return err
	}

	Logger = NewSafeLogger(zl)
	zap.ReplaceGlobals(zl)
	return nil
}

// Zap returns the underlying zap logger, never nil
func (l *SafeLogger) Zap() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}

// With returns a child logger with the given fields
func (l *SafeLogger) With(fields ...zap.Field) *SafeLogger {
	return NewSafeLogger(l.Zap().With(fields...))
}

// Named returns a child logger with the given name
func (l *SafeLogger) Named(name string) *SafeLogger {
	return NewSafeLogger(l.Zap().Named(name))
}

func (l *SafeLogger) Debug(msg string, fields ...zap.Field) { l.Zap().Debug(msg, fields...) }
func (l *SafeLogger) Info(msg string, fields ...zap.Field)  { l.Zap().Info(msg, fields...) }
func (l *SafeLogger) Warn(msg string, fields ...zap.Field)  { l.Zap().Warn(msg, fields...) }
func (l *SafeLogger) Error(msg string, fields ...zap.Field) { l.Zap().Error(msg, fields...) }
func (l *SafeLogger) Fatal(msg string, fields ...zap.Field) { l.Zap().Fatal(msg, fields...) }

// Sync flushes buffered log entries
func (l *SafeLogger) Sync() error {
	return l.Zap().Sync()
}
