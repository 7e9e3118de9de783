package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/addressbot/internal/models"
)

// ErrRunNotFound is returned when a run report does not exist
var ErrRunNotFound = errors.New("run not found")

// ResultStorage persists run reports
type ResultStorage interface {
	SaveRun(ctx context.Context, report *models.RunReport) error
	GetRun(ctx context.Context, id string) (*models.RunReport, error)
	// ListRuns returns the most recent runs first; limit <= 0 returns all
	ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error)
	DeleteRun(ctx context.Context, id string) error
}

// MetadataSource retrieves the org's address settings
type MetadataSource interface {
	Retrieve(ctx context.Context, loginURL, login, password string) (*models.AddressSettings, error)
}

// StorageManager owns the database connection and the storages built on it
type StorageManager interface {
	ResultStorage() ResultStorage
	Close() error
}
