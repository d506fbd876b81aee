package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
)

func newTestHistory(t *testing.T) *HistoryStorage {
	t.Helper()
	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "history"),
	})
	require.NoError(t, err)

	storage := NewHistoryStorage(db, logger)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestHistoryStorage_SaveAndGet(t *testing.T) {
	storage := newTestHistory(t)
	ctx := context.Background()

	run := &models.RunRecord{
		ID:         "run-1",
		Operation:  "audio",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Total:      5,
		Succeeded:  4,
		Failed:     1,
		Failures: []models.FailureRecord{
			{Path: "corrupt.mp4", Kind: "MediaUnreadable", Message: "moov atom not found"},
		},
	}
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "audio", got.Operation)
	assert.Equal(t, 4, got.Succeeded)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "corrupt.mp4", got.Failures[0].Path)

	_, err = storage.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrRunNotFound)
}

func TestHistoryStorage_ListNewestFirst(t *testing.T) {
	storage := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, op := range []string{"audio", "pdf-text", "audio"} {
		require.NoError(t, storage.SaveRun(ctx, &models.RunRecord{
			ID:        op + "-" + string(rune('a'+i)),
			Operation: op,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "audio-c", runs[0].ID)
	assert.Equal(t, "audio-a", runs[2].ID)

	limited, err := storage.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	audio, err := storage.ListRunsByOperation(ctx, "audio")
	require.NoError(t, err)
	assert.Len(t, audio, 2)

	require.NoError(t, storage.DeleteAllRuns(ctx))
	runs, err = storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestHistoryStorage_RequiresID(t *testing.T) {
	storage := newTestHistory(t)
	assert.Error(t, storage.SaveRun(context.Background(), &models.RunRecord{Operation: "x"}))
}
