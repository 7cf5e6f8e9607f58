package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchemaOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	reports, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestSaveAndRecent_RoundTripsAReport(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	report := Report{
		SessionID:   "session-1",
		StartTime:   now,
		EndTime:     now.Add(time.Minute),
		Status:      "completed",
		Scanned:     3,
		WithUpdates: 1,
		Updated:     1,
		Failed:      0,
		ResultsJSON: `[{"container":"web"}]`,
	}
	require.NoError(t, store.Save(context.Background(), report))

	got, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session-1", got[0].SessionID)
	assert.Equal(t, "completed", got[0].Status)
	assert.Equal(t, 3, got[0].Scanned)
}

func TestRecent_OrdersMostRecentFirstAndRespectsLimit(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := Report{
			SessionID: string(rune('a' + i)),
			StartTime: base.Add(time.Duration(i) * time.Hour),
			EndTime:   base.Add(time.Duration(i) * time.Hour),
			Status:    "completed",
		}
		require.NoError(t, store.Save(context.Background(), r))
	}

	got, err := store.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].SessionID)
	assert.Equal(t, "b", got[1].SessionID)
}

func TestSave_ReplacesExistingRowWithSameSessionID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Save(context.Background(), Report{SessionID: "dup", StartTime: now, EndTime: now, Status: "running"}))
	require.NoError(t, store.Save(context.Background(), Report{SessionID: "dup", StartTime: now, EndTime: now, Status: "completed"}))

	got, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "completed", got[0].Status)
}
