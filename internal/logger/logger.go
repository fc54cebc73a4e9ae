// Package logger provides the structured logging sink used across the
// sync pipeline. It wraps zap.Logger the way the rest of the stack
// constructs and passes loggers (a *zap.Logger field on every
// component, built once at startup and threaded through).
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger at the given level. Valid levels
// are "debug", "info", "warn", "error"; anything else falls back to
// "info".
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and for
// embedders that have not configured a sink yet.
func Nop() *zap.Logger {
	return zap.NewNop()
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

// Provider, Rule, Path and Attempt are the field constructors used
// throughout the pipeline so every log line tags the same
// coordinates the same way.
func Provider(name string) zap.Field { return zap.String("provider", name) }
func Rule(rule string) zap.Field     { return zap.String("rule", rule) }
func Path(name string) zap.Field     { return zap.String("path", name) }
func Attempt(n int) zap.Field        { return zap.Int("attempt", n) }
