package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/storage/badger"
)

// NewHistoryStorage opens the run history configured in config.Storage.
// It returns nil, nil when history is disabled.
func NewHistoryStorage(logger arbor.ILogger, config *common.Config) (interfaces.HistoryStorage, error) {
	if !config.Storage.Badger.Enabled {
		return nil, nil
	}
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return badger.NewHistoryStorage(db, logger), nil
}
