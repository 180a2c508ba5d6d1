package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Field keys shared by every package that logs about models, postings or runs.
const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	FieldJobID    = "job_id"
	FieldJobTitle = "job_title"
	FieldCompany  = "company"
	FieldRunID    = "run_id"
	FieldRunType  = "run_type"
)

// Strings turns key/value pairs into zap string fields. Pairs with a blank
// key or value are dropped, as is a trailing key without a value.
func Strings(kv ...string) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, value := strings.TrimSpace(kv[i]), strings.TrimSpace(kv[i+1])
		if key == "" || value == "" {
			continue
		}
		fields = append(fields, zap.String(key, value))
	}
	return fields
}

// With attaches fields to logger. A nil logger becomes a no-op one.
func With(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func CommonFields(provider, model string) []zap.Field {
	return Strings(FieldProvider, provider, FieldModel, model)
}

// WithCommonFields tags logger with the AI provider and model.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return With(logger, CommonFields(provider, model)...)
}

// JobFields describes a posting in log entries.
func JobFields(id, title, company string) []zap.Field {
	return Strings(FieldJobID, id, FieldJobTitle, title, FieldCompany, company)
}

func WithRun(logger *zap.Logger, runID, runType string) *zap.Logger {
	return With(logger, Strings(FieldRunID, runID, FieldRunType, runType)...)
}
