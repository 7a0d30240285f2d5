// Package observability provides logging and metrics for the lobby server.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/gamelobby/internal/config"
)

// NewLogger creates the server's structured logger. Every entry carries the
// configured service name and, when it can be determined, the host name. opts
// are applied before the base fields, so a zap.WrapCore option still sees them.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console"; cfg.Service must be non-empty.
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, opts ...zap.Option) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		return nil, fmt.Errorf("log service name is required")
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.With(baseFields(service)...), nil
}

func baseFields(service string) []zap.Field {
	fields := []zap.Field{zap.String("service", service)}
	if host, err := os.Hostname(); err == nil && host != "" {
		fields = append(fields, zap.String("host", host))
	}
	return fields
}
