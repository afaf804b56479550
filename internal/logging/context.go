// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys for logging.
type contextKey string

const (
	// correlationIDKey carries the per-worker correlation ID. One worker
	// processes one file, so the ID ties together every log line that file
	// produced across pipeline stages.
	correlationIDKey contextKey = "correlation_id"

	// mediaFileKey carries the file a worker is processing.
	mediaFileKey contextKey = "media_file"

	// loggerKey carries a pre-configured logger instance.
	loggerKey contextKey = "logger"
)

// FileInfo identifies the intake file a context is processing.
type FileInfo struct {
	Path      string
	MediaType string
}

// NewCorrelationID creates a new worker correlation ID. The first 8
// characters of a UUID are enough to distinguish workers in a log stream
// while staying readable.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a new context carrying the given
// correlation ID.
//
//	ctx = logging.ContextWithCorrelationID(ctx, logging.NewCorrelationID())
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext retrieves the correlation ID from context.
// Returns empty string if not present.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithFile returns a new context carrying the intake file the worker
// is processing. Set once at worker start; every Ctx log line then carries
// the file path and media type automatically.
func ContextWithFile(ctx context.Context, path, mediaType string) context.Context {
	return context.WithValue(ctx, mediaFileKey, FileInfo{Path: path, MediaType: mediaType})
}

// FileFromContext retrieves the intake file from context.
func FileFromContext(ctx context.Context) (FileInfo, bool) {
	info, ok := ctx.Value(mediaFileKey).(FileInfo)
	return info, ok
}

// ContextWithLogger stores a logger in the context, for call sites that need
// a logger other than the global one.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger from context, falling back to the
// global logger.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger with the context's correlation ID and intake file
// pre-attached. This is the recommended way to log inside pipeline stages.
//
//	logging.Ctx(ctx).Info().Msg("fingerprint computed")
//	// {"level":"info","correlation_id":"ab12cd34","file":"/intake/a.jpg","media_type":"image",...}
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := CtxWith(ctx).Logger()
	return &logger
}

// CtxWith returns a logger context builder with the correlation ID and
// intake file pre-populated, for call sites adding further fields.
//
//	logger := logging.CtxWith(ctx).Int64("media_object_id", id).Logger()
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := LoggerFromContext(ctx).With()

	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if file, ok := FileFromContext(ctx); ok {
		logCtx = logCtx.Str("file", file.Path).Str("media_type", file.MediaType)
	}

	return logCtx
}

// WithComponent creates a child logger with a component field.
//
//	scanLogger := logging.WithComponent("intake-scanner")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
