// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor implements the long-running process that watches the
intake directory and dispatches isolated per-file workers.

# Overview

The supervisor tree runs two independent suture services under one root:

	RootSupervisor ("cleo-supervisor")
	├── IntakeScanner    - scans the intake directory, classifies entries
	│                      by extension, and feeds accepted paths to the
	│                      dispatcher's queue
	└── WorkerDispatcher - reaps finished workers, starts new ones up to
	                        MaxWorkers, and honors the shutdown flag

A crash in one does not take down the other; suture restarts the failed
service per TreeConfig's failure threshold/decay/backoff.

# Main loop

Scanner: walk the intake directory once per ScanInterval, classify each
entry by extension into {image, movie, skip} using the configured
allowlists, and enqueue accepted entries.

Dispatcher: while the queue or any active worker exists and the shutdown
flag is clear: reap finished workers (success is dropped, failure moves
the file to the errors directory), start new workers up to MaxWorkers
with NEW_FILE=<path>,<type> bound in the child's environment, then sleep
PollInterval.

# Signal handling

SIGINT/SIGTERM set the shutdown flag: no new workers start afterward, and
the dispatcher waits for active workers to finish, reaping each with up
to ReapRetries status-query attempts before giving up and moving its file
to errors.

# See Also

  - internal/worker: the isolation substrate (start/reap/kill)
  - cmd/supervisor: process entry point
*/
package supervisor
