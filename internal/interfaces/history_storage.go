package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/assay/internal/models"
)

// ErrRunNotFound is returned when a run record does not exist.
var ErrRunNotFound = errors.New("run not found")

// HistoryStorage persists batch run outcomes.
type HistoryStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns runs newest first. limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	ListRunsByOperation(ctx context.Context, operation string) ([]*models.RunRecord, error)
	DeleteAllRuns(ctx context.Context) error
	Close() error
}
