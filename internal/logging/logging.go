// Package logging builds the service logger and renders wrapped errors as
// structured fields.
package logging

import (
	"github.com/samber/oops"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. format is "json" or "console"; level is any
// zapcore level name and falls back to info.
func New(format, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ErrorFields turns err into zap fields, adding the oops code and context
// when err carries them.
func ErrorFields(err error) []zap.Field {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []zap.Field{zap.Error(err)}
	}
	fields := []zap.Field{zap.String("error", oopsErr.Error())}
	if code := oopsErr.Code(); code != nil {
		fields = append(fields, zap.Any("code", code))
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		fields = append(fields, zap.Any("context", ctx))
	}
	return fields
}

// LogError logs err at error level with its structured context.
func LogError(logger *zap.Logger, msg string, err error) {
	logger.Error(msg, ErrorFields(err)...)
}
