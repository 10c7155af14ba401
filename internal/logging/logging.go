// Package logging builds the zap logger used across keepoid.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keepoid/keepoid/internal/config"
)

// New creates a logger for cfg. debug forces the debug level and the
// console encoder regardless of cfg.
func New(cfg config.LoggingConfig, debug bool) (*zap.Logger, error) {
	var zc zap.Config

	if debug || cfg.Format == "text" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.DisableStacktrace = true
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
		}
		level = l
	}
	if debug {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// Must creates a logger or panics
func Must(cfg config.LoggingConfig, debug bool) *zap.Logger {
	log, err := New(cfg, debug)
	if err != nil {
		panic(err)
	}
	return log
}
