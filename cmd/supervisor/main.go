// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command cleo-supervisor is the long-running entry point: it watches the
// intake directory and dispatches isolated per-file workers until told to
// stop.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/logging"
	"github.com/chrisorr0264/cleo2/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logFile := openLogFile(cfg.Directories.Log, "supervisor.log")
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

	logging.Info().
		Str("intake", cfg.Directories.Intake).
		Int("max_workers", cfg.Supervisor.MaxWorkers).
		Msg("cleo supervisor starting")

	for _, dir := range []string{cfg.Directories.Intake, cfg.Directories.Images, cfg.Directories.Movies, cfg.Directories.Duplicates, cfg.Directories.Errors} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logging.Fatal().Str("directory", dir).Err(err).Msg("failed to create required directory")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := supervisor.NewQueue()
	scanner := supervisor.NewIntakeScanner(cfg.Directories.Intake, cfg.Extensions.Image, cfg.Extensions.Movie, cfg.Supervisor.ScanInterval, queue)
	dispatcher := supervisor.NewWorkerDispatcher(&cfg.Supervisor, cfg.Directories.Errors, queue)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build supervisor tree")
	}
	tree.AddService(scanner)
	tree.AddService(dispatcher)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		dispatcher.RequestShutdown()
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	logging.Info().Msg("cleo supervisor stopped")
}

func openLogFile(logDir, name string) *os.File {
	if logDir == "" {
		return nil
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		logging.Warn().Str("directory", logDir).Err(err).Msg("failed to create log directory, logging to console only")
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		logging.Warn().Str("directory", logDir).Err(err).Msg("failed to open log file, logging to console only")
		return nil
	}
	return f
}
