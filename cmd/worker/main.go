// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command cleo-worker is the isolated, single-file process the supervisor
// starts once per accepted file. It reads NEW_FILE from its own
// environment, runs the processing pipeline to completion, and exits
// nonzero on any failure so the supervisor can route the file to the
// errors directory.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chrisorr0264/cleo2/internal/catalog"
	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/logging"
	"github.com/chrisorr0264/cleo2/internal/models"
	"github.com/chrisorr0264/cleo2/internal/pipeline"
)

// ffprobeProbe shells out to ffprobe for movie metadata, matching the
// JSON shape internal/metadata expects.
type ffprobeProbe struct{}

func (ffprobeProbe) ProbeMovie(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return out.Bytes(), nil
}

func main() {
	path, mediaType, err := parseNewFile(os.Getenv("NEW_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "cleo-worker:", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cleo-worker: failed to load configuration:", err)
		os.Exit(1)
	}

	logFile := openLogFile(cfg.Directories.Log)
	if logFile != nil {
		defer logFile.Close()
	}
	logging.Init(logging.Config{
		FileLevel:     cfg.Logging.FileLevel,
		ConsoleLevel:  cfg.Logging.ConsoleLevel,
		Caller:        cfg.Logging.Caller,
		Timestamp:     true,
		FileOutput:    logFile,
		ConsoleOutput: os.Stderr,
		Colors:        cfg.Logging.Colors,
	})

	db, err := catalog.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("failed to open catalog")
		os.Exit(1)
	}
	defer db.Close()

	// No face-detection library is vendored in this repository; passing a
	// nil Detector disables face labeling until an adapter is wired in.
	proc := pipeline.New(cfg, db, ffprobeProbe{}, nil)

	ctx := logging.ContextWithCorrelationID(context.Background(), logging.NewCorrelationID())
	ctx = logging.ContextWithFile(ctx, path, string(mediaType))
	if err := proc.Process(ctx, path, mediaType); err != nil {
		logging.Error().Str("path", path).Err(err).Msg("file processing failed")
		os.Exit(1)
	}

	logging.Info().Str("path", path).Msg("file processed successfully")
}

// openLogFile opens the shared worker log file for appending. Workers all
// append to one file; zerolog writes each record with a single Write call,
// which O_APPEND keeps atomic across processes for sane record sizes.
func openLogFile(logDir string) *os.File {
	if logDir == "" {
		return nil
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, "worker.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return f
}

// parseNewFile parses the NEW_FILE environment variable, formatted as
// "<absolute path>,<media type>". A missing or malformed value is a fatal
// configuration error: there is no file to recover to.
func parseNewFile(raw string) (string, models.MediaType, error) {
	if raw == "" {
		return "", "", fmt.Errorf("NEW_FILE is not set")
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("NEW_FILE %q is malformed, want \"<path>,<media_type>\"", raw)
	}
	path := strings.TrimSpace(parts[0])
	mediaType := models.MediaType(strings.TrimSpace(parts[1]))
	if path == "" {
		return "", "", fmt.Errorf("NEW_FILE %q has an empty path", raw)
	}
	switch mediaType {
	case models.MediaTypeImage, models.MediaTypeMovie:
	default:
		return "", "", fmt.Errorf("NEW_FILE %q has an unrecognized media type %q", raw, mediaType)
	}
	return path, mediaType, nil
}
