package update

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"

	"ing.wik/watchz/internal/dockerapi"
	"ing.wik/watchz/internal/logging"
)

// Engine drives update(container) against a container engine, fronted by a
// registry digest checker and reporting progress to an EventSink.
type Engine struct {
	docker dockerapi.Engine
	checks digestChecker
	sink   EventSink
	log    *logging.Logger
}

// NewEngine builds an update Engine. sink may be nil, in which case events
// are discarded.
func NewEngine(docker dockerapi.Engine, checks digestChecker, sink EventSink, log *logging.Logger) *Engine {
	if sink == nil {
		sink = noopSink{}
	}
	return &Engine{docker: docker, checks: checks, sink: sink, log: log}
}

// NeedsUpdate reports whether container's running image has a newer upstream
// manifest digest, per spec.md's needs_update algorithm.
func (e *Engine) NeedsUpdate(ctx context.Context, container dockerapi.Container) NeedsUpdateResult {
	return needsUpdate(ctx, e.docker, e.checks, container)
}

// Update runs the full update state machine for container: inspect, pull,
// stop, remove, recreate, reattach networks, start, cleanup. Each state's
// failure disposition follows the rollback table: Inspect/Pull/Stop fail
// terminally before any mutation; a Remove failure triggers a best-effort
// restart of the old container; a Create failure after Remove is
// unrecoverable (the workload is reported lost); a Start failure after
// Create rolls back by removing the new container.
func (e *Engine) Update(ctx context.Context, container dockerapi.Container, opts Options) Result {
	start := time.Now()
	result := Result{Container: container.Name}

	e.emit(container.Name, StageChecking, "", nil)

	needs := e.NeedsUpdate(ctx, container)
	result.OldDigest = needs.CurrentDigest
	result.NewDigest = needs.LatestDigest
	if needs.Err != nil {
		result.Err = fmt.Errorf("check for update: %w", needs.Err)
		e.emit(container.Name, StageFailed, "check", result.Err)
		result.Duration = time.Since(start)
		return result
	}
	if needs.SkipReason != SkipNone {
		result.Skipped = true
		result.SkipReason = needs.SkipReason
		e.emit(container.Name, StageSkipped, string(needs.SkipReason), nil)
		result.Duration = time.Since(start)
		return result
	}
	if !needs.HasUpdate {
		result.Skipped = true
		result.SkipReason = SkipNoUpdate
		e.emit(container.Name, StageSkipped, string(SkipNoUpdate), nil)
		result.Duration = time.Since(start)
		return result
	}
	result.HadUpdate = true
	e.emit(container.Name, StageUpdateAvailable, "", nil)

	if opts.DryRun {
		result.Skipped = true
		result.SkipReason = SkipWouldUpdate
		e.emit(container.Name, StageSkipped, string(SkipWouldUpdate), nil)
		result.Duration = time.Since(start)
		return result
	}

	if opts.MonitorOnly {
		result.Skipped = true
		result.SkipReason = SkipMonitorOnly
		e.emit(container.Name, StageSkipped, string(SkipMonitorOnly), nil)
		result.Duration = time.Since(start)
		return result
	}

	details, err := e.docker.InspectContainer(ctx, container.ID)
	if err != nil {
		result.Err = fmt.Errorf("inspect container: %w", err)
		e.emit(container.Name, StageFailed, "inspect", result.Err)
		result.Duration = time.Since(start)
		return result
	}
	result.OldImageID = details.Image

	newImage := container.Image

	if !opts.NoPull {
		e.emit(container.Name, StagePulling, newImage, nil)
		if err := e.docker.PullImage(ctx, newImage); err != nil {
			result.Err = fmt.Errorf("pull image: %w", err)
			e.emit(container.Name, StageFailed, "pull", result.Err)
			result.Duration = time.Since(start)
			return result
		}
	}

	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	if !opts.NoRestart {
		e.emit(container.Name, StageStopping, "", nil)
		if err := e.docker.Stop(ctx, container.ID, timeout); err != nil {
			result.Err = fmt.Errorf("stop container: %w", err)
			e.emit(container.Name, StageFailed, "stop", result.Err)
			result.Duration = time.Since(start)
			return result
		}
	}

	if err := e.docker.Remove(ctx, container.ID, false); err != nil {
		// Rollback point: the old container still exists but is stopped.
		// Attempt to bring it back up and surface the original removal error
		// regardless of whether the rollback start itself succeeds.
		if startErr := e.docker.Start(ctx, container.ID); startErr != nil && e.log != nil {
			e.log.WithField("container", container.Name).Warn("rollback start of %s also failed: %v", container.ID, startErr)
		}
		result.Err = fmt.Errorf("remove old container: %w", err)
		e.emit(container.Name, StageFailed, "remove", result.Err)
		result.Duration = time.Since(start)
		return result
	}

	cfg, hostCfg := recreateConfig(details, newImage)
	newID, err := e.docker.Create(ctx, details.Name, cfg, hostCfg, nil)
	if err != nil {
		// The old container is already gone: this is an unrecoverable loss of
		// the workload, reported as failed rather than rolled back.
		result.Err = fmt.Errorf("create new container: %w (old container %s is gone)", err, container.Name)
		e.emit(container.Name, StageFailed, "create", result.Err)
		result.Duration = time.Since(start)
		return result
	}
	result.NewImageID = newID

	result.NetworkErrors = e.reattachNetworks(ctx, newID, details)

	// A container that was already stopped stays stopped unless the caller
	// asked to revive it: recreating it is still a successful update.
	wasRunning := container.State == "running"
	if wasRunning || opts.ReviveStopped {
		e.emit(container.Name, StageStarting, "", nil)
		if err := e.docker.Start(ctx, newID); err != nil {
			// Rollback point: remove the just-created container and surface the
			// start error; the old container has already been removed upstream.
			if remErr := e.docker.Remove(ctx, newID, false); remErr != nil && e.log != nil {
				e.log.WithField("container", container.Name).Warn("rollback remove of %s also failed: %v", newID, remErr)
			}
			result.Err = fmt.Errorf("start new container: %w", err)
			e.emit(container.Name, StageFailed, "start", result.Err)
			result.Duration = time.Since(start)
			return result
		}
	}

	if opts.Cleanup && result.OldImageID != "" && result.OldImageID != newImage {
		if err := e.docker.RemoveImage(ctx, result.OldImageID); err != nil && e.log != nil {
			e.log.WithField("container", container.Name).Debug("image cleanup skipped: %v", err)
		}
	}

	result.Updated = true
	result.Duration = time.Since(start)
	e.emit(container.Name, StageSuccess, newID, nil)
	if e.log != nil {
		e.log.WithField("container", container.Name).Info("updated in %s", units.HumanDuration(result.Duration))
	}
	return result
}

// reattachNetworks disconnects the single network the engine auto-attached
// on create and reconnects every network the original container belonged to,
// carrying over its aliases minus the old container's own short-ID alias.
// Each failure is collected into the returned slice and does not abort the
// update.
func (e *Engine) reattachNetworks(ctx context.Context, newID string, details dockerapi.ContainerDetails) []error {
	var errs []error

	oldShortID := details.ID
	if len(oldShortID) > 12 {
		oldShortID = oldShortID[:12]
	}

	autoAttached := ""
	for name, ep := range details.Networks {
		if ep.NetworkID != "" {
			autoAttached = name
			break
		}
	}
	if autoAttached != "" && details.HostConfigData.NetworkMode != "host" {
		if err := e.docker.NetworkDisconnect(ctx, autoAttached, newID, false); err != nil {
			errs = append(errs, fmt.Errorf("disconnect auto-attached network %s: %w", autoAttached, err))
		}
	}

	for name, ep := range details.Networks {
		aliases := filterAlias(ep.Aliases, oldShortID)
		if err := e.docker.NetworkConnect(ctx, ep.NetworkID, newID, aliases); err != nil {
			errs = append(errs, fmt.Errorf("connect network %s: %w", name, err))
		}
	}

	return errs
}

func filterAlias(aliases []string, exclude string) []string {
	if exclude == "" {
		return aliases
	}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a != exclude {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) emit(container string, stage Stage, msg string, err error) {
	e.sink.Emit(Event{Container: container, Stage: stage, Message: msg, Err: err, At: time.Now()})
}
