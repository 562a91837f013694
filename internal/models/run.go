package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the state of a pipeline run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRequest describes one pipeline invocation: which border and window to
// analyze and where the raw series comes from
type RunRequest struct {
	InDomain    string    `json:"in_domain"`          // EIC code of the in-zone
	OutDomain   string    `json:"out_domain"`         // EIC code of the out-zone
	PeriodStart time.Time `json:"period_start"`       // Window start (inclusive), UTC
	PeriodEnd   time.Time `json:"period_end"`         // Window end (exclusive), UTC
	Resolution  string    `json:"resolution"`         // "PT15M" or "PT60M"
	CSVPath     string    `json:"csv_path,omitempty"` // Offline mode: load from file instead of the API
	Force       bool      `json:"force"`              // Skip the snapshot cache and re-fetch
}

// RunArtifact is the persisted record of one pipeline run. Each stage writes
// its summary into the artifact as it completes, so a failed run still shows
// how far it got and why it stopped.
//
// Stage summaries are immutable once written. A re-run produces a new artifact
// rather than mutating an old one.
type RunArtifact struct {
	ID          string    `json:"id"`
	InDomain    string    `json:"in_domain" badgerhold:"index"`
	OutDomain   string    `json:"out_domain" badgerhold:"index"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Resolution  string    `json:"resolution"`
	Status      RunStatus `json:"status" badgerhold:"index"`
	SnapshotKey string    `json:"snapshot_key"` // Series the run was computed from

	// Stage summaries, populated in pipeline order. Diagnostics holds one
	// entry per successfully evaluated model, best model first.
	Series      *SeriesSummary        `json:"series,omitempty"`
	Hourly      *SeriesSummary        `json:"hourly,omitempty"` // Sum-resampled view of sub-hourly series
	Features    *FeatureSummary       `json:"features,omitempty"`
	Bench       *BenchResult          `json:"bench,omitempty"`
	Diagnostics []ResidualDiagnostics `json:"diagnostics,omitempty"`
	Narrative   *Narrative            `json:"narrative,omitempty"`

	// ReportPaths maps rendered format to output file path
	ReportPaths map[string]string `json:"report_paths,omitempty"`

	// Error contains a concise description of why the run failed.
	// Format: "Stage: brief description" (e.g., "features: window 96 exceeds series length").
	// Only populated when Status is 'failed'.
	Error string `json:"error,omitempty"`

	// ConfigSnapshot is a JSON snapshot of the pipeline knobs at run time,
	// kept so an artifact can be interpreted after defaults change
	ConfigSnapshot string `json:"config_snapshot,omitempty"`

	Version     string    `json:"version"` // Application version that produced the run
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// MarkRunning transitions the run to running and stamps the start time
func (r *RunArtifact) MarkRunning() {
	r.Status = RunStatusRunning
	r.StartedAt = time.Now().UTC()
}

// MarkCompleted transitions the run to completed and stamps the end time
func (r *RunArtifact) MarkCompleted() {
	r.Status = RunStatusCompleted
	r.CompletedAt = time.Now().UTC()
}

// MarkFailed transitions the run to failed with a stage-prefixed reason
func (r *RunArtifact) MarkFailed(stage string, err error) {
	r.Status = RunStatusFailed
	r.CompletedAt = time.Now().UTC()
	if err != nil {
		r.Error = stage + ": " + err.Error()
	} else {
		r.Error = stage + ": unknown error"
	}
}

// Duration returns the elapsed run time, or zero if the run never started
func (r *RunArtifact) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// SetConfigSnapshot marshals and stores the pipeline configuration as JSON
func (r *RunArtifact) SetConfigSnapshot(v interface{}) error {
	if v == nil {
		r.ConfigSnapshot = ""
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.ConfigSnapshot = string(data)
	return nil
}
