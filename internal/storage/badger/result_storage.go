package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// ResultStorage implements interfaces.ResultStorage for Badger
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResultStorage {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ResultStorage) SaveRun(ctx context.Context, report *models.RunReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.ID, err)
	}
	s.logger.Debug().
		Str("run_id", report.ID).
		Int("results", len(report.Results)).
		Msg("Run report saved")
	return nil
}

func (s *ResultStorage) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	var report models.RunReport
	if err := s.db.Store().Get(id, &report); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &report, nil
}

func (s *ResultStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reports []models.RunReport
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]*models.RunReport, len(reports))
	for i := range reports {
		out[i] = &reports[i]
	}
	return out, nil
}

func (s *ResultStorage) DeleteRun(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, models.RunReport{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return nil
}
