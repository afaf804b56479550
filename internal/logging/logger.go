// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration. The file and console sinks have
// independent minimum levels (FILE_DEBUG_LEVEL / CONSOLE_DEBUG_LEVEL in
// the environment). Either sink may be omitted by leaving its Output field
// nil.
type Config struct {
	// FileLevel is the minimum level written to FileOutput.
	// Default: info
	FileLevel string

	// ConsoleLevel is the minimum level written to ConsoleOutput.
	// Default: info
	ConsoleLevel string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Timestamp enables timestamps in log output. Default: true.
	Timestamp bool

	// FileOutput is the writer for the file sink. Nil disables it.
	FileOutput io.Writer

	// ConsoleOutput is the writer for the console sink. Defaults to
	// os.Stderr if both FileOutput and ConsoleOutput are nil.
	ConsoleOutput io.Writer

	// Colors maps severity name ("debug","info","warn","error","fatal") to
	// an ANSI color code used by the console sink. Nil uses zerolog's
	// built-in defaults.
	Colors map[string]string
}

// DefaultConfig returns the default logging configuration: console-only,
// info level.
func DefaultConfig() Config {
	return Config{
		FileLevel:     "info",
		ConsoleLevel:  "info",
		Caller:        false,
		Timestamp:     true,
		ConsoleOutput: os.Stderr,
	}
}

var (
	// log is the global logger instance.
	log zerolog.Logger

	// mu protects concurrent initialization.
	mu sync.RWMutex
)

//nolint:gochecknoinits // init ensures logging works before explicit Init() call
func init() {
	initLogger(DefaultConfig())
}

// Init initializes the global logger with the given configuration.
// This should be called early in application startup. Safe to call more
// than once; later calls reconfigure the logger.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// levelFilterWriter drops records below a configured minimum level. It
// implements zerolog.LevelWriter so a zerolog.MultiLevelWriter can give the
// file and console sinks independent thresholds from a single logger.
type levelFilterWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// initLogger configures the global logger (must be called with mu held).
func initLogger(cfg Config) {
	if cfg.FileLevel == "" {
		cfg.FileLevel = "info"
	}
	if cfg.ConsoleLevel == "" {
		cfg.ConsoleLevel = "info"
	}
	if cfg.FileOutput == nil && cfg.ConsoleOutput == nil {
		cfg.ConsoleOutput = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.ErrorFieldName = "error"
	zerolog.CallerFieldName = "caller"

	var writers []io.Writer
	minLevel := zerolog.FatalLevel

	if cfg.FileOutput != nil {
		lvl := parseLevel(cfg.FileLevel)
		writers = append(writers, levelFilterWriter{Writer: cfg.FileOutput, min: lvl})
		if lvl < minLevel {
			minLevel = lvl
		}
	}
	if cfg.ConsoleOutput != nil {
		lvl := parseLevel(cfg.ConsoleLevel)
		console := zerolog.ConsoleWriter{
			Out:        cfg.ConsoleOutput,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
		if len(cfg.Colors) > 0 {
			console.FormatLevel = consoleLevelFormatter(cfg.Colors)
		}
		writers = append(writers, levelFilterWriter{Writer: console, min: lvl})
		if lvl < minLevel {
			minLevel = lvl
		}
	}

	zerolog.SetGlobalLevel(minLevel)

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}

	log = ctx.Logger()
}

// consoleLevelFormatter builds a zerolog FormatLevel hook that colors the
// level token per the configured per-severity ANSI codes.
func consoleLevelFormatter(colors map[string]string) zerolog.Formatter {
	return func(i interface{}) string {
		levelStr, _ := i.(string)
		code, ok := colors[strings.ToLower(levelStr)]
		if !ok {
			return strings.ToUpper(levelStr)
		}
		return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, strings.ToUpper(levelStr))
	}
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger instance.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the global logger instance. Useful for tests.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With creates a child logger context with additional fields.
//
//	workerLogger := logging.With().Str("component", "worker").Logger()
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

// Trace starts a new message with trace level.
func Trace() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Trace()
}

// Debug starts a new message with debug level.
func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Debug()
}

// Info starts a new message with info level.
func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Info()
}

// Warn starts a new message with warning level.
func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Warn()
}

// Error starts a new message with error level.
func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Error()
}

// Fatal starts a new message with fatal level. os.Exit(1) runs after the
// message is logged.
func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Fatal()
}

// Err starts a new message at error level and attaches the error.
//
//	logging.Err(err).Msg("geocode failed")
func Err(err error) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Err(err)
}

// GetLevel returns the current global log level.
func GetLevel() zerolog.Level {
	return zerolog.GlobalLevel()
}

// SetLevel updates the global log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// NewTestLogger creates a logger that writes to the provided writer.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

