package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across blogpulse.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldSeriesID  = "series_id"
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldDueAt      = "due_at"
	FieldNextDueAt  = "next_due_at"
	FieldBackoff    = "backoff"

	// Errors
	FieldError     = "error"
	FieldRetryable = "retryable"

	// Counts
	FieldCount    = "count"
	FieldAttempt  = "attempt"
	FieldAttempts = "attempts"

	// Status
	FieldStatus = "status"
	FieldRatio  = "ratio"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"

	// Domain
	FieldSymbol    = "symbol"
	FieldTopic     = "topic"
	FieldFrequency = "frequency"
	FieldModel     = "model"
)

type contextKey string

const (
	seriesIDKey  contextKey = "logger_series_id"
	jobIDKey     contextKey = "logger_job_id"
	requestIDKey contextKey = "logger_request_id"
)

// WithSeriesID adds a series ID to the context for logging
func WithSeriesID(ctx context.Context, seriesID string) context.Context {
	return context.WithValue(ctx, seriesIDKey, seriesID)
}

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FieldsFromContext extracts logging fields from context as key-value pairs
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(seriesIDKey).(string); ok && id != "" {
		fields = append(fields, FieldSeriesID, id)
	}
	if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
		fields = append(fields, FieldJobID, id)
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, FieldRequestID, id)
	}

	return fields
}

// LoggerFromContext returns a logger carrying series_id, job_id and request_id from ctx.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
//	s.logger = logger.ComponentLogger("pulse.scheduler")
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
