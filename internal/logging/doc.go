// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the zerolog-based logging layer shared by the
// cleo supervisor and worker processes.
//
// A single global logger fans out to two sinks with independent minimum
// levels: a JSON file sink (the operator's reconciliation record) and a
// console sink with configurable per-severity colors. Both thresholds come
// from configuration (file_level / console_level).
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    FileLevel:    "debug",
//	    ConsoleLevel: "info",
//	    FileOutput:   logFile,
//	})
//
//	logging.Info().Str("path", path).Msg("worker started")
//	logging.Error().Err(err).Msg("pipeline stage failed")
//
// Always terminate log chains with .Msg() or .Send(); a chain without a
// terminator is never emitted.
//
// # Worker context
//
// Each worker processes exactly one file. ContextWithCorrelationID and
// ContextWithFile stamp that identity onto the context at worker start, and
// Ctx(ctx) then attaches it to every line a pipeline stage logs:
//
//	ctx = logging.ContextWithCorrelationID(ctx, logging.NewCorrelationID())
//	ctx = logging.ContextWithFile(ctx, path, string(mediaType))
//	logging.Ctx(ctx).Info().Msg("duplicate check complete")
//
// # Suture bridge
//
// The supervisor tree logs through sutureslog, which speaks log/slog.
// NewSlogLogger bridges those records into the same zerolog sinks:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
//
// All exported functions are safe for concurrent use.
package logging
