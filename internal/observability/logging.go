package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildworker/internal/logfields"
)

// LogContext holds structured logging context information for one task.
type LogContext struct {
	EventID   string
	TenantID  string
	ServiceID string
	Stage     string
	WorkerID  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithEventID adds the task event id to the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	lc := extractLogContext(ctx)
	lc.EventID = eventID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithService adds tenant and service ids to the context.
func WithService(ctx context.Context, tenantID, serviceID string) context.Context {
	lc := extractLogContext(ctx)
	lc.TenantID = tenantID
	lc.ServiceID = serviceID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithStage adds a stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	lc := extractLogContext(ctx)
	lc.Stage = stage
	return context.WithValue(ctx, logContextKey, lc)
}

// WithWorkerID adds the worker identity to the context.
func WithWorkerID(ctx context.Context, workerID string) context.Context {
	lc := extractLogContext(ctx)
	lc.WorkerID = workerID
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	attrs := make([]slog.Attr, 0, 5)

	if lc.EventID != "" {
		attrs = append(attrs, logfields.EventID(lc.EventID))
	}
	if lc.TenantID != "" {
		attrs = append(attrs, logfields.TenantID(lc.TenantID))
	}
	if lc.ServiceID != "" {
		attrs = append(attrs, logfields.ServiceID(lc.ServiceID))
	}
	if lc.Stage != "" {
		attrs = append(attrs, logfields.Stage(lc.Stage))
	}
	if lc.WorkerID != "" {
		attrs = append(attrs, logfields.Worker(lc.WorkerID))
	}
	return attrs
}

func logWith(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	all := append(getLogAttrs(ctx), attrs...)
	slog.LogAttrs(ctx, level, msg, all...)
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWith(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWith(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWith(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logWith(ctx, slog.LevelDebug, msg, attrs)
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}
