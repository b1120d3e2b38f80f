// Package logging builds structured zap loggers shared across the proxy
// engine, recorder, admin router, and process supervisor.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names for structured logging, attached once per logger via
// NewComponentLogger.
const (
	ComponentProxy    = "proxy"
	ComponentAdmin    = "admin"
	ComponentRecorder = "recorder"
	ComponentProcess  = "process"
	ComponentConfig   = "config"
)

// Canonical field names for consistency across the application.
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDurationMs = "duration_ms"
	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldReason     = "reason"
)

// NewLogger creates a zap.Logger with the specified level, format, and
// optional file output. level can be debug, info, warn, or error; format
// can be json or console. If filePath is empty, logs are written to
// stdout.
func NewLogger(level, format, filePath string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info", "":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer = zapcore.AddSync(os.Stdout)
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		ws = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	return zap.New(core), nil
}

// NewComponentLogger creates a logger with a component field pre-populated.
func NewComponentLogger(level, format, filePath, component string) (*zap.Logger, error) {
	logger, err := NewLogger(level, format, filePath)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String(FieldComponent, component)), nil
}
