package interfaces

import (
	"github.com/ternarybob/auspex/internal/models"
)

// SnapshotStorage - interface for fetched time-series persistence
type SnapshotStorage interface {
	// CRUD operations
	SaveSnapshot(snapshot *models.SeriesSnapshot) error
	GetSnapshot(key string) (*models.SeriesSnapshot, error)
	DeleteSnapshot(key string) error

	// List operations
	ListSnapshots(limit, offset int) ([]*models.SeriesSnapshot, error)
	ListSnapshotsByBorder(inDomain, outDomain string) ([]*models.SeriesSnapshot, error)

	// Stats operations
	CountSnapshots() (int, error)

	// Bulk operations
	ClearAll() error
}

// RunStorage - interface for pipeline run artifact persistence
type RunStorage interface {
	// CRUD operations
	SaveRun(run *models.RunArtifact) error
	GetRun(id string) (*models.RunArtifact, error)
	DeleteRun(id string) error

	// List operations
	ListRuns(limit, offset int) ([]*models.RunArtifact, error)
	ListRunsByBorder(inDomain, outDomain string, limit int) ([]*models.RunArtifact, error)
	GetLatestRun(inDomain, outDomain string) (*models.RunArtifact, error)

	// Stats operations
	CountRuns() (int, error)

	// Bulk operations
	ClearAll() error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	SnapshotStorage() SnapshotStorage
	RunStorage() RunStorage
	DB() interface{}
	Close() error
}
