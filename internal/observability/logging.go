// Package observability provides structured logging for the pong server.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/pong/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
// Every entry carries a "service" field set to service.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
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
	if service != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": service}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Field names shared by every component that logs connection or match activity.
const (
	FieldConn     = "conn_id"
	FieldSession  = "session_id"
	FieldUsername = "username"
	FieldSeat     = "seat"
	FieldMatch    = "match_id"
)

// ConnFields returns the zap fields identifying a connection and, once known,
// the authenticated username.
func ConnFields(connID, username string) []zap.Field {
	fields := []zap.Field{zap.String(FieldConn, connID)}
	if username != "" {
		fields = append(fields, zap.String(FieldUsername, username))
	}
	return fields
}
