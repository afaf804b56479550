// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler on top of zerolog. The supervisor tree
// depends on it: sutureslog speaks slog, while the rest of the engine logs
// through zerolog, and both must land in the same sinks.
type slogBridge struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	prefix string // dotted group prefix applied to every attribute key
}

// NewSlogLogger returns an *slog.Logger whose records are written through
// the global zerolog logger.
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogBridge{logger: Logger()})
}

// NewSlogLoggerWith returns an *slog.Logger writing through a specific
// zerolog logger. Used by tests and by callers holding a child logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogLoggerWith(logger zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{logger: logger})
}

// toZerologLevel maps an slog level band onto the zerolog level it should
// log at.
func toZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Enabled implements slog.Handler.
func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return toZerologLevel(level) >= b.logger.GetLevel()
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (b *slogBridge) Handle(_ context.Context, record slog.Record) error {
	event := b.logger.WithLevel(toZerologLevel(record.Level))

	for _, attr := range b.attrs {
		event = b.appendAttr(event, b.prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = b.appendAttr(event, b.prefix, attr)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs implements slog.Handler.
func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(b.attrs)+len(attrs))
	merged = append(merged, b.attrs...)
	merged = append(merged, attrs...)
	return &slogBridge{logger: b.logger, attrs: merged, prefix: b.prefix}
}

// WithGroup implements slog.Handler. Groups become dotted key prefixes in
// the zerolog output.
func (b *slogBridge) WithGroup(name string) slog.Handler {
	if name == "" {
		return b
	}
	return &slogBridge{logger: b.logger, attrs: b.attrs, prefix: joinGroup(b.prefix, name)}
}

func joinGroup(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// appendAttr renders one slog attribute onto a zerolog event, recursing into
// group-valued attributes with an extended key prefix.
func (b *slogBridge) appendAttr(event *zerolog.Event, prefix string, attr slog.Attr) *zerolog.Event {
	if attr.Value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = joinGroup(prefix, attr.Key)
		}
		for _, ga := range attr.Value.Group() {
			event = b.appendAttr(event, inner, ga)
		}
		return event
	}

	key := joinGroup(prefix, attr.Key)
	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return event.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(key, attr.Value.Time())
	default:
		return event.Interface(key, attr.Value.Any())
	}
}
