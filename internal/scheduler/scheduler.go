// Package scheduler drives one-shot and periodic execution of a tick
// function, computing the next fire time so a slow tick never drifts the
// overall cadence.
package scheduler

import (
	"context"
	"time"

	"ing.wik/watchz/internal/logging"
)

// TickFunc is one scan-and-update pass. Its error is logged, never fatal:
// a failing tick does not stop the periodic loop.
type TickFunc func(ctx context.Context) error

// Scheduler runs a TickFunc once or on a fixed interval.
type Scheduler struct {
	log *logging.Logger
}

// New builds a Scheduler. log may be nil, in which case tick errors are
// silently discarded rather than logged (RunOnce/RunPeriodic still run).
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// RunOnce invokes fn a single time and returns its error to the caller
// unwrapped, for the run-once CLI path where the exit code should reflect
// the tick's own outcome.
func (s *Scheduler) RunOnce(ctx context.Context, fn TickFunc) error {
	return fn(ctx)
}

// RunPeriodic loops until ctx is cancelled: each iteration records the start
// time, runs fn (logging rather than propagating its error), then sleeps for
// max(0, interval-elapsed) so a slow tick shortens the next sleep instead of
// pushing every future tick later. The first tick fires immediately.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration, fn TickFunc) {
	for {
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logError(err)
		}

		if ctx.Err() != nil {
			return
		}

		sleep := interval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) logError(err error) {
	if s.log == nil {
		return
	}
	s.log.Error("scheduler tick failed: %v", err)
}
