// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes the suture root supervisor that keeps the intake scanner
// and worker dispatcher running.
type TreeConfig struct {
	// FailureThreshold is the decayed failure count at which the tree stops
	// restarting a service immediately and enters backoff.
	FailureThreshold float64

	// FailureDecay is the half-life, in seconds, of the failure count.
	FailureDecay float64

	// FailureBackoff is how long the tree waits once the threshold is hit.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds the wait for services to stop on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig matches suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// withDefaults fills zero-valued fields from DefaultTreeConfig.
func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// SupervisorTree runs the intake scan loop and the worker dispatch loop as
// independent suture services under one root supervisor: a crash in either
// loop is restarted without affecting the other, and both are stopped
// together on shutdown.
type SupervisorTree struct {
	root   *suture.Supervisor
	config TreeConfig
}

// NewSupervisorTree builds the root supervisor. Suture's lifecycle events
// are logged through the given slog.Logger via sutureslog (callers bridge it
// into zerolog with logging.NewSlogLogger).
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	root := suture.New("cleo-supervisor", suture.Spec{
		EventHook:        hook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	})

	return &SupervisorTree{root: root, config: config}, nil
}

// AddService registers a service (the intake scanner or the worker
// dispatcher) with the root supervisor.
func (t *SupervisorTree) AddService(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine; the returned channel yields
// Serve's result.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that failed to stop within
// ShutdownTimeout, for logging at exit.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
