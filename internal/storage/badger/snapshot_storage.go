package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/auspex/internal/interfaces"
	"github.com/ternarybob/auspex/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SnapshotStorage implements the SnapshotStorage interface for Badger
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSnapshot stores a fetched series under its deterministic key.
// Saving the same key again overwrites, which is how a forced re-fetch
// refreshes a stale window.
func (s *SnapshotStorage) SaveSnapshot(snapshot *models.SeriesSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	if snapshot.Key == "" {
		return fmt.Errorf("snapshot key is required")
	}
	if len(snapshot.Timestamps) != len(snapshot.Values) {
		return fmt.Errorf("snapshot has %d timestamps but %d values", len(snapshot.Timestamps), len(snapshot.Values))
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	if err := s.db.Store().Upsert(snapshot.Key, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug().
		Str("key", snapshot.Key).
		Int("points", snapshot.Len()).
		Msg("Snapshot saved")
	return nil
}

// GetSnapshot retrieves a snapshot by key
func (s *SnapshotStorage) GetSnapshot(key string) (*models.SeriesSnapshot, error) {
	var snapshot models.SeriesSnapshot
	if err := s.db.Store().Get(key, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("snapshot not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

// DeleteSnapshot removes a snapshot by key
func (s *SnapshotStorage) DeleteSnapshot(key string) error {
	if err := s.db.Store().Delete(key, &models.SeriesSnapshot{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("snapshot not found: %s", key)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshots ordered newest first
func (s *SnapshotStorage) ListSnapshots(limit, offset int) ([]*models.SeriesSnapshot, error) {
	query := badgerhold.Where("Key").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var snapshots []models.SeriesSnapshot
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	result := make([]*models.SeriesSnapshot, len(snapshots))
	for i := range snapshots {
		result[i] = &snapshots[i]
	}
	return result, nil
}

// ListSnapshotsByBorder returns all snapshots for a border, oldest window first
func (s *SnapshotStorage) ListSnapshotsByBorder(inDomain, outDomain string) ([]*models.SeriesSnapshot, error) {
	var snapshots []models.SeriesSnapshot
	query := badgerhold.Where("InDomain").Eq(inDomain).And("OutDomain").Eq(outDomain).SortBy("PeriodStart")
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to list snapshots for border: %w", err)
	}

	result := make([]*models.SeriesSnapshot, len(snapshots))
	for i := range snapshots {
		result[i] = &snapshots[i]
	}
	return result, nil
}

// CountSnapshots returns the total number of stored snapshots
func (s *SnapshotStorage) CountSnapshots() (int, error) {
	count, err := s.db.Store().Count(&models.SeriesSnapshot{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return int(count), nil
}

// ClearAll removes all snapshots
func (s *SnapshotStorage) ClearAll() error {
	return s.db.Store().DeleteMatching(&models.SeriesSnapshot{}, nil)
}
