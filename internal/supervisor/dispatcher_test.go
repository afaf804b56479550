// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/models"
)

func testSupervisorConfig(binary string) *config.SupervisorConfig {
	return &config.SupervisorConfig{
		MaxWorkers:          2,
		WorkerCPUQuota:      0.5,
		WorkerMemoryQuotaMB: 256,
		ReapTimeout:         300 * time.Millisecond,
		ReapRetries:         3,
		PollInterval:        20 * time.Millisecond,
		ScanInterval:        time.Second,
		WorkerBinaryPath:    binary,
	}
}

// waitForEmptyQueue blocks until the dispatcher has popped every queued
// entry, failing the test if ctx expires first.
func waitForEmptyQueue(t *testing.T, ctx context.Context, queue *Queue) {
	t.Helper()
	for queue.Len() != 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("queue not drained before deadline, len %d", queue.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDispatcherDrainsQueueAndStops(t *testing.T) {
	errorsDir := t.TempDir()
	intakeDir := t.TempDir()

	path := filepath.Join(intakeDir, "a.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	queue := NewQueue()
	queue.Push(QueueEntry{Path: path, MediaType: models.MediaTypeImage})

	d := NewWorkerDispatcher(testSupervisorConfig("true"), errorsDir, queue)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(ctx) }()

	// Shutdown stops new workers from starting, so it is requested only
	// once the queued file has been handed to a worker.
	waitForEmptyQueue(t, ctx, queue)
	d.RequestShutdown()

	if err := <-serveErr; err != nil {
		t.Fatalf("Serve error: %v", err)
	}

	if queue.Len() != 0 {
		t.Fatalf("expected queue drained, got len %d", queue.Len())
	}
	if d.activeCount() != 0 {
		t.Fatalf("expected no active workers after drain, got %d", d.activeCount())
	}
}

func TestDispatcherMovesFailedWorkerFileToErrors(t *testing.T) {
	errorsDir := t.TempDir()
	intakeDir := t.TempDir()

	path := filepath.Join(intakeDir, "b.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	queue := NewQueue()
	queue.Push(QueueEntry{Path: path, MediaType: models.MediaTypeImage})

	d := NewWorkerDispatcher(testSupervisorConfig("false"), errorsDir, queue)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(ctx) }()

	waitForEmptyQueue(t, ctx, queue)
	d.RequestShutdown()

	if err := <-serveErr; err != nil {
		t.Fatalf("Serve error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(errorsDir, "b.jpg")); err != nil {
		t.Fatalf("expected failed file moved to errors directory: %v", err)
	}
}

func TestDispatcherRespectsMaxWorkers(t *testing.T) {
	errorsDir := t.TempDir()
	intakeDir := t.TempDir()

	queue := NewQueue()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		path := filepath.Join(intakeDir, name)
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		queue.Push(QueueEntry{Path: path, MediaType: models.MediaTypeImage})
	}

	cfg := testSupervisorConfig("sleep")
	cfg.MaxWorkers = 2
	d := NewWorkerDispatcher(cfg, errorsDir, queue)

	// startAvailable should stop after filling MaxWorkers slots, leaving one
	// entry in the queue.
	d.startAvailable()

	if d.activeCount() != 2 {
		t.Fatalf("expected 2 active workers, got %d", d.activeCount())
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 entry left queued, got %d", queue.Len())
	}

	for _, proc := range d.active {
		_ = proc.Kill()
	}
}
