package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/auspex/internal/interfaces"
	"github.com/ternarybob/auspex/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun stores or updates a run artifact
func (s *RunStorage) SaveRun(run *models.RunArtifact) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("Run artifact saved")
	return nil
}

// GetRun retrieves a run artifact by ID
func (s *RunStorage) GetRun(id string) (*models.RunArtifact, error) {
	var run models.RunArtifact
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// DeleteRun removes a run artifact by ID
func (s *RunStorage) DeleteRun(id string) error {
	if err := s.db.Store().Delete(id, &models.RunArtifact{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("run not found: %s", id)
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// ListRuns returns run artifacts ordered newest first
func (s *RunStorage) ListRuns(limit, offset int) ([]*models.RunArtifact, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var runs []models.RunArtifact
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunArtifact, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// ListRunsByBorder returns run artifacts for a border, newest first
func (s *RunStorage) ListRunsByBorder(inDomain, outDomain string, limit int) ([]*models.RunArtifact, error) {
	query := badgerhold.Where("InDomain").Eq(inDomain).And("OutDomain").Eq(outDomain).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunArtifact
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs for border: %w", err)
	}

	result := make([]*models.RunArtifact, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// GetLatestRun returns the most recently created run for a border
func (s *RunStorage) GetLatestRun(inDomain, outDomain string) (*models.RunArtifact, error) {
	runs, err := s.ListRunsByBorder(inDomain, outDomain, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs found for border %s>%s", inDomain, outDomain)
	}
	return runs[0], nil
}

// CountRuns returns the total number of stored run artifacts
func (s *RunStorage) CountRuns() (int, error) {
	count, err := s.db.Store().Count(&models.RunArtifact{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return int(count), nil
}

// ClearAll removes all run artifacts
func (s *RunStorage) ClearAll() error {
	return s.db.Store().DeleteMatching(&models.RunArtifact{}, nil)
}
