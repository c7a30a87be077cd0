// Package logging builds the service's zap loggers and the HTTP middleware
// that logs requests and recovers panics.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a zap level name, ignoring case and surrounding space.
func ParseLevel(level string) (zapcore.Level, error) {
	return zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
}

// IsValidLogLevel reports whether level names a zap level.
func IsValidLogLevel(level string) bool {
	_, err := ParseLevel(level)
	return err == nil
}

// BootstrapLogger logs to stderr at info until the config is loaded.
func BootstrapLogger() *zap.Logger {
	logger, err := configFor("dev", zapcore.InfoLevel).Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// BuildLogger returns the process logger: JSON for env "prod", the console
// encoder otherwise. An unknown level falls back to info with a warning on
// stderr.
func BuildLogger(level, env string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: log level %q not recognised, using info\n", level)
		lvl = zapcore.InfoLevel
	}
	return configFor(env, lvl).Build()
}

func configFor(env string, lvl zapcore.Level) zap.Config {
	cfg := zap.NewDevelopmentConfig()
	if env == "prod" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
