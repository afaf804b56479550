// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBridgeLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewSlogLoggerWith(zerolog.New(&buf)), &buf
}

// pinTraceLevel holds the zerolog global level at trace for the duration of
// a test, since sibling tests (and the package init) move it around.
func pinTraceLevel(t *testing.T) {
	t.Helper()
	old := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(old) })
}

func TestSlogBridgeLevels(t *testing.T) {
	pinTraceLevel(t)

	logger, buf := newBridgeLogger()

	tests := []struct {
		log       func(msg string, args ...any)
		wantLevel string
	}{
		{logger.Debug, `"level":"debug"`},
		{logger.Info, `"level":"info"`},
		{logger.Warn, `"level":"warn"`},
		{logger.Error, `"level":"error"`},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log("supervisor event")
		if !strings.Contains(buf.String(), tt.wantLevel) {
			t.Errorf("expected %s in output: %s", tt.wantLevel, buf.String())
		}
		if !strings.Contains(buf.String(), "supervisor event") {
			t.Errorf("expected message in output: %s", buf.String())
		}
	}
}

func TestSlogBridgeAttrKinds(t *testing.T) {
	pinTraceLevel(t)

	logger, buf := newBridgeLogger()

	logger.Info("worker reaped",
		slog.String("path", "/intake/a.jpg"),
		slog.Int64("pid", 4711),
		slog.Bool("succeeded", true),
		slog.Float64("elapsed_s", 2.5),
		slog.Duration("reap_timeout", 120*time.Second),
	)

	output := buf.String()
	for _, want := range []string{
		`"path":"/intake/a.jpg"`,
		`"pid":4711`,
		`"succeeded":true`,
		`"elapsed_s":2.5`,
		`"reap_timeout":120000`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestSlogBridgeWithAttrsPersist(t *testing.T) {
	pinTraceLevel(t)

	logger, buf := newBridgeLogger()

	svcLogger := logger.With(slog.String("service", "intake-scanner"))
	svcLogger.Info("first")
	svcLogger.Info("second")

	if got := strings.Count(buf.String(), `"service":"intake-scanner"`); got != 2 {
		t.Errorf("expected service attr on both lines, found %d: %s", got, buf.String())
	}
}

func TestSlogBridgeGroupsBecomeDottedKeys(t *testing.T) {
	pinTraceLevel(t)

	logger, buf := newBridgeLogger()

	logger.WithGroup("suture").Info("restarting",
		slog.String("supervisor", "cleo-supervisor"),
		slog.Group("service", slog.String("name", "worker-dispatcher")),
	)

	output := buf.String()
	if !strings.Contains(output, `"suture.supervisor":"cleo-supervisor"`) {
		t.Errorf("expected dotted group key in output: %s", output)
	}
	if !strings.Contains(output, `"suture.service.name":"worker-dispatcher"`) {
		t.Errorf("expected nested group key in output: %s", output)
	}
}

func TestSlogBridgeEnabledTracksZerologLevel(t *testing.T) {
	pinTraceLevel(t)

	var buf bytes.Buffer
	logger := NewSlogLoggerWith(zerolog.New(&buf).Level(zerolog.WarnLevel))

	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected debug to be disabled on a warn-level logger")
	}
	if !logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("expected error to be enabled on a warn-level logger")
	}

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("info line should have been dropped: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn line should have been kept: %s", buf.String())
	}
}

func TestNewSlogLoggerUsesGlobal(t *testing.T) {
	// Not parallel: replaces the global logger.
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	NewSlogLogger().Info("through the bridge")

	if !strings.Contains(buf.String(), "through the bridge") {
		t.Errorf("expected bridged line in global sink: %s", buf.String())
	}
}
