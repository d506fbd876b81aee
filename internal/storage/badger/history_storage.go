package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HistoryStorage implements interfaces.HistoryStorage for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.HistoryStorage = (*HistoryStorage)(nil)

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) *HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun inserts or replaces a run record
func (s *HistoryStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.logger.Debug().
		Str("run_id", run.ID).
		Str("operation", run.Operation).
		Int("failed", run.Failed).
		Msg("Run recorded")
	return nil
}

// GetRun retrieves a run by ID
func (s *HistoryStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	err := s.db.Store().Get(id, &run)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns runs newest first
func (s *HistoryStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, nil); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// ListRunsByOperation returns the runs of one operation, newest first
func (s *HistoryStorage) ListRunsByOperation(ctx context.Context, operation string) ([]*models.RunRecord, error) {
	var runs []models.RunRecord
	query := badgerhold.Where("Operation").Eq(operation).Index("Operation")
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", operation, err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// DeleteAllRuns removes every run record
func (s *HistoryStorage) DeleteAllRuns(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.RunRecord{}, nil); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	s.logger.Info().Msg("Run history cleared")
	return nil
}

// Close closes the underlying database
func (s *HistoryStorage) Close() error {
	return s.db.Close()
}
