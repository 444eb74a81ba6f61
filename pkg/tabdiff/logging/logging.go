// Package logging builds the single zap.Logger every tabdiff command
// shares, selected by workspace LogConfig (spec.md §7: "one-line message
// plus optional verbose trace" at each command boundary).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger for format ("console" or "json") and level
// ("debug", "info", "warn", "error"). "json" gets zap's production
// config (structured, suited to piping into a log aggregator); "console"
// gets zap's development config (human-readable, colorless since command
// output is frequently redirected).
func New(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	switch format {
	case "json":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		return cfg.Build()
	case "console", "":
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}

// Must builds a logger the way New does, falling back to zap's no-op
// logger rather than panicking — tabdiff's commands must still run if
// logging itself is misconfigured.
func Must(format, level string) *zap.Logger {
	l, err := New(format, level)
	if err != nil {
		return zap.NewNop()
	}
	return l
}
