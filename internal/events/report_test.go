package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ing.wik/watchz/internal/logging"
	"ing.wik/watchz/internal/notify"
	"ing.wik/watchz/internal/update"
)

type recordingNotifier struct {
	messages []notify.Message
}

func (r *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestAggregator_RecordTalliesUpdatedAndFailed(t *testing.T) {
	a := NewAggregator(nil, nil, logging.LevelInfo, false, nil)

	a.Record(update.Result{Container: "web", Updated: true, HadUpdate: true})
	a.Record(update.Result{Container: "db", Skipped: true})
	a.Record(update.Result{Container: "cache", Err: errors.New("boom")})

	report := a.Finalize()

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.WithUpdates)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, StatusPartialFailure, report.Status)
}

func TestAggregator_AllSuccessIsCompleted(t *testing.T) {
	a := NewAggregator(nil, nil, logging.LevelInfo, false, nil)
	a.Record(update.Result{Container: "web", Updated: true})

	report := a.Finalize()

	assert.Equal(t, StatusCompleted, report.Status)
}

func TestAggregator_AllFailedIsFailed(t *testing.T) {
	a := NewAggregator(nil, nil, logging.LevelInfo, false, nil)
	a.Record(update.Result{Container: "web", Err: errors.New("boom")})

	report := a.Finalize()

	assert.Equal(t, StatusFailed, report.Status)
}

func TestAggregator_EmitPublishesToBus(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.Subscribe(EventUpdateProgress)
	defer unsubscribe()

	a := NewAggregator(bus, nil, logging.LevelError, false, nil)
	a.Emit(update.Event{Container: "web", Stage: update.StageStopping, At: time.Now()})

	select {
	case got := <-ch:
		assert.Equal(t, "web", got.Payload["container"])
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected the event to be published to the bus")
	}
}

func TestAggregator_EmitDispatchesOnlyAtOrAboveMinLevel(t *testing.T) {
	n := &recordingNotifier{}
	a := NewAggregator(nil, []notify.Notifier{n}, logging.LevelError, false, nil)

	a.Emit(update.Event{Container: "web", Stage: update.StageStopping})
	assert.Empty(t, n.messages, "a debug-level stage must not reach notifiers above error threshold")

	a.Emit(update.Event{Container: "web", Stage: update.StageFailed, Err: errors.New("remove failed")})
	assert.Len(t, n.messages, 1)
	assert.Equal(t, "remove failed", n.messages[0].Body)
}

func TestAggregator_FinalizeDispatchesReportOnlyWhenEnabled(t *testing.T) {
	n := &recordingNotifier{}
	a := NewAggregator(nil, []notify.Notifier{n}, logging.LevelInfo, true, nil)
	a.Record(update.Result{Container: "web", Updated: true})

	a.Finalize()

	assert.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0].Title, "completed")
}
