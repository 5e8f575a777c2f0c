// Package logging builds the service's zap logger. The level lives in a
// zap.AtomicLevel so the admin endpoint can raise verbosity on a live
// process while chasing a misbehaving call.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is the initial log level (debug, info, warn, error).
	Level string
	// Format selects the encoder: json or console.
	Format string
	// Environment switches encoder defaults (development, production).
	Environment string
}

// DefaultConfig is json at info level.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "json", Environment: "development"}
}

// Logger is a zap.Logger plus the atomic level it was built with.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New builds a Logger writing to stderr. A nil config gets DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if cfg.Environment == "production" {
		encoderConfig = zap.NewProductionEncoderConfig()
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atomicLevel)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.Environment != "production" {
		opts = append(opts, zap.Development())
	}

	return &Logger{
		Logger: zap.New(core, opts...),
		level:  atomicLevel,
	}, nil
}

// ParseLevel maps a level name onto zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown level: %s", level)
	}
}

// Zap returns the underlying zap.Logger for components that take one.
func (l *Logger) Zap() *zap.Logger {
	return l.Logger
}

// AtomicLevel exposes the level for the runtime log-level endpoint.
func (l *Logger) AtomicLevel() zap.AtomicLevel {
	return l.level
}
