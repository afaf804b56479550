// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/logging"
	"github.com/chrisorr0264/cleo2/internal/worker"
)

// WorkerDispatcher is the suture service that reaps finished workers and
// starts new ones bounded by MaxWorkers.
type WorkerDispatcher struct {
	cfg       *config.SupervisorConfig
	errorsDir string
	queue     *Queue

	mu           sync.Mutex
	active       []*worker.Process
	shuttingDown atomic.Bool
}

// NewWorkerDispatcher builds a dispatcher over queue, starting workers via
// cfg.WorkerBinaryPath and moving failed files to errorsDir.
func NewWorkerDispatcher(cfg *config.SupervisorConfig, errorsDir string, queue *Queue) *WorkerDispatcher {
	return &WorkerDispatcher{
		cfg:       cfg,
		errorsDir: errorsDir,
		queue:     queue,
	}
}

// RequestShutdown sets the shutdown flag: no further workers are started,
// and Serve returns once all active workers have been reaped.
func (d *WorkerDispatcher) RequestShutdown() {
	d.shuttingDown.Store(true)
}

// Serve implements suture.Service. It loops reap -> start -> sleep until
// the shutdown flag is set and the active worker set is empty; canceling
// ctx sets the flag. Entries still queued when the flag is set are not
// started.
func (d *WorkerDispatcher) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.RequestShutdown()
		default:
		}

		d.reapFinished(ctx)

		if !d.shuttingDown.Load() {
			d.startAvailable()
		}

		if d.shuttingDown.Load() && d.activeCount() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			if d.activeCount() == 0 {
				return ctx.Err()
			}
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

func (d *WorkerDispatcher) activeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// startAvailable starts new workers while len(active) < MaxWorkers and the
// queue is nonempty.
func (d *WorkerDispatcher) startAvailable() {
	for {
		d.mu.Lock()
		if len(d.active) >= d.cfg.MaxWorkers {
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		entry, ok := d.queue.Pop()
		if !ok {
			return
		}

		proc, err := worker.Start(d.cfg.WorkerBinaryPath, entry.Path, entry.MediaType, d.cfg.WorkerCPUQuota, d.cfg.WorkerMemoryQuotaMB)
		if err != nil {
			logging.Error().Str("path", entry.Path).Err(&ingesterr.IsolationError{WorkerID: entry.Path, Stage: "start", Err: err}).
				Msg("failed to start worker")
			d.moveToErrors(entry.Path)
			d.queue.Release(entry.Path)
			continue
		}

		d.mu.Lock()
		d.active = append(d.active, proc)
		d.mu.Unlock()

		logging.Info().Str("path", entry.Path).Str("media_type", string(entry.MediaType)).Int("pid", proc.PID()).Msg("worker started")
	}
}

// reapFinished queries every active worker's status, dropping successes,
// moving failures to the errors directory, and retrying timed-out status
// queries up to ReapRetries times per worker. A worker still running after
// those retries stays active, unless shutdown has been requested, in which
// case it is killed and handled as a failure.
func (d *WorkerDispatcher) reapFinished(ctx context.Context) {
	d.mu.Lock()
	active := make([]*worker.Process, len(d.active))
	copy(active, d.active)
	d.mu.Unlock()

	var stillActive []*worker.Process
	for _, proc := range active {
		status, err := d.queryWithRetries(proc)

		switch status {
		case worker.StatusSucceeded:
			d.queue.Release(proc.Path)
			logging.Info().Str("path", proc.Path).Msg("worker completed successfully")
		case worker.StatusFailed:
			logging.Warn().Str("path", proc.Path).Err(err).Msg("worker exited with failure")
			d.moveToErrors(proc.Path)
			d.queue.Release(proc.Path)
		case worker.StatusRunning:
			stillActive = append(stillActive, proc)
		}
	}

	d.mu.Lock()
	d.active = stillActive
	d.mu.Unlock()
}

// queryWithRetries retries a status query up to ReapRetries times on
// repeated timeouts (status stays StatusRunning); if the process is still
// running after all retries, it is left active to be polled again on the
// next reap pass. A genuine exit (success or failure) is returned as soon
// as it's observed.
func (d *WorkerDispatcher) queryWithRetries(proc *worker.Process) (worker.Status, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.ReapRetries; attempt++ {
		status, err := proc.Query(d.cfg.ReapTimeout)
		if status != worker.StatusRunning {
			return status, err
		}
		lastErr = err
	}

	if d.shuttingDown.Load() {
		// During shutdown, a worker that never finishes status queries is
		// forcibly reaped so the dispatcher can terminate.
		_ = proc.Kill()
		return worker.StatusFailed, lastErr
	}

	return worker.StatusRunning, nil
}

func (d *WorkerDispatcher) moveToErrors(path string) {
	if d.errorsDir == "" {
		return
	}
	dest := filepath.Join(d.errorsDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		logging.Error().Str("path", path).Err(&ingesterr.IOError{Path: path, Op: "move-to-errors", Err: err}).
			Msg("failed to move failed file to errors directory")
	}
}

// String implements fmt.Stringer for suture's event log.
func (d *WorkerDispatcher) String() string {
	return "worker-dispatcher"
}
