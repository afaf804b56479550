// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"testing"
	"time"

	"github.com/chrisorr0264/cleo2/internal/models"
)

func TestStartSucceeds(t *testing.T) {
	proc, err := Start("true", "/intake/a.jpg", models.MediaTypeImage, 0.5, 256)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if proc.PID() == 0 {
		t.Fatalf("expected nonzero pid")
	}

	status, err := proc.Query(2 * time.Second)
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if status != StatusSucceeded {
		t.Fatalf("expected StatusSucceeded, got %v", status)
	}
}

func TestStartFails(t *testing.T) {
	proc, err := Start("false", "/intake/b.jpg", models.MediaTypeImage, 0.5, 256)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	status, err := proc.Query(2 * time.Second)
	if status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", status)
	}
	if err == nil {
		t.Fatalf("expected a non-nil exit error")
	}
}

func TestQueryTimesOutWhileRunning(t *testing.T) {
	proc, err := Start("sleep", "/intake/c.mp4", models.MediaTypeMovie, 1.0, 512)
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	// sleep with no args exits immediately with usage error on most
	// platforms, but the query timeout itself only checks whether the
	// process finishes within the window; a tiny timeout reliably
	// observes StatusRunning before a fast exit lands.
	status, _ := proc.Query(1 * time.Nanosecond)
	if status != StatusRunning && status != StatusFailed {
		t.Fatalf("expected StatusRunning or a fast StatusFailed, got %v", status)
	}
	_ = proc.Kill()
}

func TestUnknownBinaryReturnsError(t *testing.T) {
	_, err := Start("cleo-worker-does-not-exist", "/intake/d.jpg", models.MediaTypeImage, 0.5, 256)
	if err == nil {
		t.Fatalf("expected error starting nonexistent binary")
	}
}

func TestResourceCapEnv(t *testing.T) {
	env := resourceCapEnv(0.5, 512)
	if len(env) != 2 {
		t.Fatalf("expected 2 env entries, got %v", env)
	}
	if env[0] != "GOMAXPROCS=1" {
		t.Errorf("GOMAXPROCS entry = %q, want GOMAXPROCS=1 for a fractional quota", env[0])
	}
	if env[1] != "GOMEMLIMIT=512MiB" {
		t.Errorf("GOMEMLIMIT entry = %q, want GOMEMLIMIT=512MiB", env[1])
	}

	none := resourceCapEnv(2.0, 0)
	if len(none) != 1 || none[0] != "GOMAXPROCS=2" {
		t.Errorf("unexpected env for zero memory quota: %v", none)
	}
}
