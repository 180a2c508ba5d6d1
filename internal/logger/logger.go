// Package logger builds the process logger and shared structured fields.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger, or a JSON one when json is set. Stack
// traces are only attached in debug mode.
func New(json bool, debug bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoding := "console"
	if json {
		encoding = "json"
	}

	cfg := zap.Config{
		Encoding:          encoding,
		Level:             level,
		DisableStacktrace: !debug,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "step",
			LevelKey:       "level",
			TimeKey:        "time",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}

	return cfg.Build()
}
