package badger

import (
	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	results interfaces.ResultStorage
	logger  arbor.ILogger
}

// NewManager opens the database and builds the storages on top of it
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", config.Path).Msg("Result storage initialized")

	return &Manager{
		db:      db,
		results: NewResultStorage(db, logger),
		logger:  logger,
	}, nil
}

// ResultStorage returns the run report storage
func (m *Manager) ResultStorage() interfaces.ResultStorage {
	return m.results
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
