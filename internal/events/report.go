package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/notify"
	"ing.wik/watchz/internal/update"
)

// Status is a SessionReport's terminal classification.
type Status string

const (
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// SessionReport summarizes one scheduler tick: every container considered,
// how many had updates available, how many were actually updated or failed,
// and the individual per-container results.
type SessionReport struct {
	SessionID   string
	StartTime   time.Time
	EndTime     time.Time
	Scanned     int
	WithUpdates int
	Updated     int
	Failed      int
	Results     []update.Result
	Status      Status
}

// Aggregator is the update engine's EventSink: it republishes every
// stage-transition event onto a Bus, forwards level-admitted events to
// notifiers immediately, collects each container's final Result into a
// SessionReport, and dispatches the finished report when notification_report
// is enabled. One Aggregator instance is scoped to a single tick; callers
// construct a fresh one per RunOnce/RunPeriodic iteration.
type Aggregator struct {
	mu sync.Mutex

	bus          *Bus
	notifiers    []notify.Notifier
	minLevel     logging.Level
	notifyReport bool
	log          *logging.Logger

	report SessionReport
}

// NewAggregator builds an Aggregator publishing onto bus (may be nil to
// skip bus fan-out) and dispatching events at or above minLevel to
// notifiers. notifyReport additionally gates end-of-tick report dispatch.
func NewAggregator(bus *Bus, notifiers []notify.Notifier, minLevel logging.Level, notifyReport bool, log *logging.Logger) *Aggregator {
	return &Aggregator{
		bus:          bus,
		notifiers:    notifiers,
		minLevel:     minLevel,
		notifyReport: notifyReport,
		log:          log,
		report:       SessionReport{SessionID: uuid.NewString(), StartTime: time.Now(), Status: StatusRunning},
	}
}

// Emit implements update.EventSink: it republishes the event onto the bus
// and, if its stage's level admits it, dispatches immediately to notifiers.
func (a *Aggregator) Emit(e update.Event) {
	if a.bus != nil {
		a.bus.Publish(Event{
			Type: EventUpdateProgress,
			Payload: map[string]interface{}{
				"container": e.Container,
				"stage":     string(e.Stage),
				"message":   e.Message,
			},
		})
	}

	level := levelForStage(e.Stage)
	if level < a.minLevel {
		return
	}

	msg := notify.Message{Level: level, Title: fmt.Sprintf("%s: %s", e.Container, e.Stage)}
	if e.Err != nil {
		msg.Body = e.Err.Error()
	} else {
		msg.Body = e.Message
	}
	for _, err := range notify.Dispatch(context.Background(), a.notifiers, msg) {
		if a.log != nil {
			a.log.Warn("notification dispatch failed: %v", err)
		}
	}
}

// Record adds a finished per-container Result to the report's tally.
// Callers invoke this once per container after Engine.Update returns,
// since Update's return value (not an Emit event) carries the final outcome.
func (a *Aggregator) Record(result update.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.report.Scanned++
	a.report.Results = append(a.report.Results, result)
	if result.HadUpdate {
		a.report.WithUpdates++
	}
	if result.Updated {
		a.report.Updated++
	}
	if result.Err != nil {
		a.report.Failed++
	}

	if a.bus != nil {
		a.bus.Publish(Event{
			Type: EventContainerUpdated,
			Payload: map[string]interface{}{
				"container": result.Container,
				"updated":   result.Updated,
			},
		})
	}
}

// Finalize computes the report's terminal status, dispatches it to
// notifiers when notification_report is enabled, and returns it.
func (a *Aggregator) Finalize() SessionReport {
	a.mu.Lock()
	a.report.EndTime = time.Now()
	a.report.Status = classify(a.report)
	report := a.report
	a.mu.Unlock()

	if a.notifyReport {
		msg := notify.Message{
			Level: reportLevel(report.Status),
			Title: fmt.Sprintf("watchz session %s", report.Status),
			Body: fmt.Sprintf("scanned=%d with_updates=%d updated=%d failed=%d",
				report.Scanned, report.WithUpdates, report.Updated, report.Failed),
		}
		for _, err := range notify.Dispatch(context.Background(), a.notifiers, msg) {
			if a.log != nil {
				a.log.Warn("session report dispatch failed: %v", err)
			}
		}
	}

	return report
}

func classify(r SessionReport) Status {
	switch {
	case r.Scanned == 0:
		return StatusCompleted
	case r.Failed == 0:
		return StatusCompleted
	case r.Failed == r.Scanned:
		return StatusFailed
	default:
		return StatusPartialFailure
	}
}

func levelForStage(stage update.Stage) logging.Level {
	switch stage {
	case update.StageFailed:
		return logging.LevelError
	case update.StageUpdateAvailable, update.StageSuccess:
		return logging.LevelInfo
	default:
		return logging.LevelDebug
	}
}

func reportLevel(status Status) logging.Level {
	switch status {
	case StatusFailed:
		return logging.LevelError
	case StatusPartialFailure:
		return logging.LevelWarn
	default:
		return logging.LevelInfo
	}
}
