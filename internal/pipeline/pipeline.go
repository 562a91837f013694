// Package pipeline orchestrates one analysis run end to end: series
// acquisition (stored snapshot, upstream fetch, or CSV file), validation,
// feature engineering, the model benchmark, residual diagnostics, grounded
// narration, report rendering and artifact persistence.
//
// A run is logically sequential. Stage boundaries check for cancellation,
// every stage writes its summary into the artifact before the next starts,
// and a failed run records the stage that stopped it. Runs share no mutable
// state, so different borders can execute concurrently.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auspex/internal/bench"
	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/diagnostics"
	"github.com/ternarybob/auspex/internal/entsoe"
	"github.com/ternarybob/auspex/internal/features"
	"github.com/ternarybob/auspex/internal/grounding"
	"github.com/ternarybob/auspex/internal/interfaces"
	"github.com/ternarybob/auspex/internal/models"
	"github.com/ternarybob/auspex/internal/report"
	"github.com/ternarybob/auspex/internal/series"
)

// defaultCurrency labels series whose source carries no currency, such as
// CSV files. ENTSO-E publishes congestion income in EUR.
const defaultCurrency = "EUR"

// Fetcher is the upstream data source seam. The production implementation
// is the ENTSO-E client; tests substitute a canned fake.
type Fetcher interface {
	GetCongestionIncome(ctx context.Context, inDomain, outDomain string, from, to time.Time) (*entsoe.CongestionIncome, error)
}

// ReportWriter renders a run artifact into its configured output files
type ReportWriter interface {
	Write(run *models.RunArtifact) (map[string]string, error)
}

// Runner executes pipeline runs against a fixed configuration and storage
type Runner struct {
	config    *common.Config
	storage   interfaces.StorageManager
	fetcher   Fetcher
	generator interfaces.Generator
	writer    ReportWriter
	logger    arbor.ILogger
	version   string
}

// Option configures a Runner
type Option func(*Runner)

// WithFetcher sets the upstream data source. A runner without a fetcher can
// still serve snapshot and CSV runs.
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithGenerator sets the narrative backend. A runner without a generator
// produces the deterministic template narrative.
func WithGenerator(g interfaces.Generator) Option {
	return func(r *Runner) { r.generator = g }
}

// WithWriter overrides the report writer
func WithWriter(w ReportWriter) Option {
	return func(r *Runner) { r.writer = w }
}

// WithVersion stamps artifacts with the application version
func WithVersion(v string) Option {
	return func(r *Runner) { r.version = v }
}

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a pipeline runner
func NewRunner(config *common.Config, storage interfaces.StorageManager, opts ...Option) *Runner {
	r := &Runner{
		config:  config,
		storage: storage,
		logger:  common.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.writer == nil {
		r.writer = report.NewWriter(&config.Report)
	}
	return r
}

// Run executes the full pipeline for one request. The returned artifact is
// non-nil whenever the request itself was valid: a failed run comes back
// with its status, failing stage and partial summaries alongside the error.
func (r *Runner) Run(ctx context.Context, req models.RunRequest) (*models.RunArtifact, error) {
	if err := r.normalize(&req); err != nil {
		return nil, err
	}

	run := &models.RunArtifact{
		ID:          common.NewRunID(),
		InDomain:    req.InDomain,
		OutDomain:   req.OutDomain,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Resolution:  req.Resolution,
		Version:     r.version,
		CreatedAt:   time.Now().UTC(),
	}
	if err := run.SetConfigSnapshot(r.knobs()); err != nil {
		return nil, fmt.Errorf("failed to snapshot configuration: %w", err)
	}

	run.MarkRunning()
	if err := r.storage.RunStorage().SaveRun(run); err != nil {
		r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist running state")
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Str("border", req.InDomain+">"+req.OutDomain).
		Str("window", req.PeriodStart.Format("2006-01-02")+".."+req.PeriodEnd.Format("2006-01-02")).
		Msg("Pipeline run started")

	// Acquisition
	if err := ctx.Err(); err != nil {
		return r.fail(run, "fetch", err)
	}
	snapshot, err := r.acquire(ctx, run, &req)
	if err != nil {
		return r.fail(run, "fetch", err)
	}

	// Validation
	if err := ctx.Err(); err != nil {
		return r.fail(run, "series", err)
	}
	validated, err := r.validate(snapshot)
	if err != nil {
		return r.fail(run, "series", err)
	}
	run.Series = validated.Summary()
	r.logger.Debug().Str("run_id", run.ID).Int("points", validated.Len()).Msg("Series validated")

	// Sub-hourly series additionally get an hourly income view in the report
	if validated.Interval() < time.Hour {
		if hourly, err := validated.Resample(time.Hour, "sum"); err == nil {
			run.Hourly = hourly.Summary()
		} else {
			r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Hourly view unavailable")
		}
	}

	// Features
	if err := ctx.Err(); err != nil {
		return r.fail(run, "features", err)
	}
	frame, err := features.Build(validated, r.featureConfig())
	if err != nil {
		return r.fail(run, "features", err)
	}
	run.Features = frame.Summary()
	r.logger.Debug().Str("run_id", run.ID).Int("rows", frame.Rows()).Int("columns", len(frame.Columns)).Msg("Feature frame built")

	// Benchmark
	if err := ctx.Err(); err != nil {
		return r.fail(run, "bench", err)
	}
	benchResult, err := bench.Evaluate(frame, r.benchConfig(validated.Interval()))
	if err != nil {
		return r.fail(run, "bench", err)
	}
	run.Bench = benchResult.Summary()
	r.logger.Debug().Str("run_id", run.ID).Str("best", string(benchResult.Best)).Msg("Model benchmark complete")

	// Diagnostics
	if err := ctx.Err(); err != nil {
		return r.fail(run, "diagnostics", err)
	}
	reports, err := diagnostics.DiagnoseAll(benchResult, r.config.Diagnostics.AutocorrLags)
	if err != nil {
		return r.fail(run, "diagnostics", err)
	}
	run.Diagnostics = reports

	// Narrative
	if err := ctx.Err(); err != nil {
		return r.fail(run, "narrative", err)
	}
	narrative, err := r.narrate(ctx, run)
	if err != nil {
		return r.fail(run, "narrative", err)
	}
	run.Narrative = narrative

	// Render and persist
	run.MarkCompleted()
	paths, err := r.writer.Write(run)
	if err != nil {
		return r.fail(run, "report", err)
	}
	run.ReportPaths = paths

	if err := r.storage.RunStorage().SaveRun(run); err != nil {
		return run, fmt.Errorf("run %s completed but could not be persisted: %w", run.ID, err)
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Str("best_model", run.Bench.Best).
		Int("points", run.Series.Points).
		Bool("narrative_grounded", run.Narrative.Grounded).
		Dur("duration", run.Duration()).
		Msg("Pipeline run completed")

	return run, nil
}

// normalize validates the request and resolves zone names to EIC codes
func (r *Runner) normalize(req *models.RunRequest) error {
	if req.InDomain == "" || req.OutDomain == "" {
		return fmt.Errorf("run request needs both in_domain and out_domain")
	}

	in, inErr := entsoe.ResolveDomain(req.InDomain)
	out, outErr := entsoe.ResolveDomain(req.OutDomain)
	if req.CSVPath == "" {
		if inErr != nil {
			return inErr
		}
		if outErr != nil {
			return outErr
		}
	}
	// CSV runs keep unresolvable labels verbatim; the border is only used
	// for reporting and storage keys there
	if inErr == nil {
		req.InDomain = in
	}
	if outErr == nil {
		req.OutDomain = out
	}

	if req.Resolution == "" {
		req.Resolution = r.config.Run.Resolution
	}
	if _, err := series.ParseResolution(req.Resolution); err != nil {
		return err
	}

	if req.CSVPath == "" {
		if req.PeriodStart.IsZero() || req.PeriodEnd.IsZero() {
			return fmt.Errorf("run request needs an explicit time window")
		}
		if !req.PeriodEnd.After(req.PeriodStart) {
			return fmt.Errorf("period end %s is not after period start %s", req.PeriodEnd, req.PeriodStart)
		}
	}
	req.PeriodStart = req.PeriodStart.UTC()
	req.PeriodEnd = req.PeriodEnd.UTC()
	return nil
}

// acquire produces the series snapshot for the run: a CSV file, a stored
// snapshot for identical fetch parameters, or a fresh upstream fetch
func (r *Runner) acquire(ctx context.Context, run *models.RunArtifact, req *models.RunRequest) (*models.SeriesSnapshot, error) {
	if req.CSVPath != "" {
		return r.loadCSV(run, req)
	}

	key := models.SnapshotKey(req.InDomain, req.OutDomain, req.PeriodStart, req.PeriodEnd, req.Resolution)
	run.SnapshotKey = key

	if r.config.Entsoe.UseSnapshots && !req.Force {
		if snapshot, err := r.storage.SnapshotStorage().GetSnapshot(key); err == nil {
			r.logger.Info().Str("key", key).Int("points", snapshot.Len()).Msg("Reusing stored series snapshot")
			if snapshot.Resolution != "" {
				run.Resolution = snapshot.Resolution
			}
			return snapshot, nil
		}
	}

	if r.fetcher == nil {
		return nil, fmt.Errorf("no upstream client configured (set entsoe.api_token or provide a CSV source)")
	}

	result, err := r.fetcher.GetCongestionIncome(ctx, req.InDomain, req.OutDomain, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if len(result.Points) == 0 {
		return nil, fmt.Errorf("no congestion income published for %s>%s in the requested window", req.InDomain, req.OutDomain)
	}

	// The document declares its own resolution; it wins over the request
	resolution := req.Resolution
	if result.Resolution != "" && result.Resolution != resolution {
		r.logger.Warn().
			Str("requested", resolution).
			Str("published", result.Resolution).
			Msg("Published resolution differs from requested")
		resolution = result.Resolution
		run.Resolution = resolution
	}
	currency := result.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	snapshot := &models.SeriesSnapshot{
		Key:         key,
		InDomain:    req.InDomain,
		OutDomain:   req.OutDomain,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Resolution:  resolution,
		Currency:    currency,
		Timestamps:  make([]time.Time, 0, len(result.Points)),
		Values:      make([]float64, 0, len(result.Points)),
		Source:      "entsoe",
	}
	for _, p := range result.Points {
		snapshot.Timestamps = append(snapshot.Timestamps, p.Timestamp)
		snapshot.Values = append(snapshot.Values, p.Value)
	}

	// A failed save costs reproducibility of re-runs, not this run
	if err := r.storage.SnapshotStorage().SaveSnapshot(snapshot); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist series snapshot")
	}
	return snapshot, nil
}

// loadCSV builds a snapshot from a local file. A missing window derives
// from the first and last observation.
func (r *Runner) loadCSV(run *models.RunArtifact, req *models.RunRequest) (*models.SeriesSnapshot, error) {
	points, err := series.ReadCSVFile(req.CSVPath)
	if err != nil {
		return nil, err
	}

	interval, err := series.ParseResolution(req.Resolution)
	if err != nil {
		return nil, err
	}
	start, end := req.PeriodStart, req.PeriodEnd
	if start.IsZero() {
		start = points[0].Timestamp.UTC()
	}
	if end.IsZero() {
		end = points[len(points)-1].Timestamp.UTC().Add(interval)
	}
	run.PeriodStart, run.PeriodEnd = start, end

	snapshot := &models.SeriesSnapshot{
		Key:         models.SnapshotKey(req.InDomain, req.OutDomain, start, end, req.Resolution),
		InDomain:    req.InDomain,
		OutDomain:   req.OutDomain,
		PeriodStart: start,
		PeriodEnd:   end,
		Resolution:  req.Resolution,
		Currency:    defaultCurrency,
		Timestamps:  make([]time.Time, 0, len(points)),
		Values:      make([]float64, 0, len(points)),
		Source:      "csv",
	}
	for _, p := range points {
		snapshot.Timestamps = append(snapshot.Timestamps, p.Timestamp)
		snapshot.Values = append(snapshot.Values, p.Value)
	}
	run.SnapshotKey = snapshot.Key

	if err := r.storage.SnapshotStorage().SaveSnapshot(snapshot); err != nil {
		r.logger.Warn().Err(err).Str("key", snapshot.Key).Msg("Failed to persist CSV snapshot")
	}

	r.logger.Info().Str("path", req.CSVPath).Int("points", snapshot.Len()).Msg("Series loaded from CSV")
	return snapshot, nil
}

// validate turns the snapshot into a validated series under the configured
// gap policy
func (r *Runner) validate(snapshot *models.SeriesSnapshot) (*series.Series, error) {
	interval, err := series.ParseResolution(snapshot.Resolution)
	if err != nil {
		return nil, err
	}

	points := make([]series.Point, snapshot.Len())
	for i := range snapshot.Values {
		points[i] = series.Point{Timestamp: snapshot.Timestamps[i], Value: snapshot.Values[i]}
	}

	return series.Load(points, series.Config{
		Interval:           interval,
		Tolerance:          r.config.Series.IntervalTolerance,
		GapPolicy:          series.GapPolicy(r.config.Series.GapPolicy),
		RequireNonNegative: r.config.Series.RequireNonNegative,
		Currency:           snapshot.Currency,
	})
}

// narrate builds the grounding payload and runs the narrator over it
func (r *Runner) narrate(ctx context.Context, run *models.RunArtifact) (*models.Narrative, error) {
	payload, err := grounding.BuildPayload(run.Series, run.Bench, run.Diagnostics, r.config.Grounding.TopFeatures)
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(r.config.Grounding.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 180 * time.Second
	}

	narrator := grounding.NewNarrator(r.generator, grounding.Config{
		Tolerance:   r.config.Grounding.Tolerance,
		Timeout:     timeout,
		TopFeatures: r.config.Grounding.TopFeatures,
	})
	return narrator.Narrate(ctx, payload)
}

func (r *Runner) featureConfig() features.Config {
	c := r.config.Features
	return features.Config{
		Lags:                  c.Lags,
		Windows:               c.Windows,
		WindowStats:           c.WindowStats,
		DiffSpans:             c.DiffSpans,
		ZScoreWindow:          c.ZScoreWindow,
		VolatilityWindow:      c.VolatilityWindow,
		VolatilityPercentiles: c.VolatilityPercentiles,
		SpreadWindow:          c.SpreadWindow,
		Intraday:              c.Intraday,
		Horizon:               c.Horizon,
	}
}

func (r *Runner) benchConfig(interval time.Duration) bench.Config {
	c := r.config.Bench
	cfg := bench.Config{
		SplitFraction: c.SplitFraction,
		Season:        c.Season,
		RollingWindow: c.RollingWindow,
		MAPEEpsilon:   c.MAPEEpsilon,
		Forest: bench.ForestConfig{
			Trees:    c.ForestTrees,
			MaxDepth: c.ForestDepth,
			MinSplit: c.ForestMinLeaf,
			Seed:     c.ForestSeed,
		},
	}
	if cfg.Season == 0 && interval > 0 {
		cfg.Season = int(24 * time.Hour / interval)
	}
	return cfg
}

// knobs is the configuration subset whose values change model output; it is
// stored with every artifact so old reports stay interpretable
type knobs struct {
	Series      common.SeriesConfig      `json:"series"`
	Features    common.FeaturesConfig    `json:"features"`
	Bench       common.BenchConfig       `json:"bench"`
	Diagnostics common.DiagnosticsConfig `json:"diagnostics"`
	Grounding   common.GroundingConfig   `json:"grounding"`
}

func (r *Runner) knobs() knobs {
	return knobs{
		Series:      r.config.Series,
		Features:    r.config.Features,
		Bench:       r.config.Bench,
		Diagnostics: r.config.Diagnostics,
		Grounding:   r.config.Grounding,
	}
}

// fail records the failing stage, renders what the run produced so far and
// persists the failed artifact
func (r *Runner) fail(run *models.RunArtifact, stage string, err error) (*models.RunArtifact, error) {
	run.MarkFailed(stage, err)
	r.logger.Error().Err(err).Str("run_id", run.ID).Str("stage", stage).Msg("Pipeline run failed")

	if paths, werr := r.writer.Write(run); werr != nil {
		r.logger.Warn().Err(werr).Str("run_id", run.ID).Msg("Failed to render failure report")
	} else {
		run.ReportPaths = paths
	}
	if serr := r.storage.RunStorage().SaveRun(run); serr != nil {
		r.logger.Warn().Err(serr).Str("run_id", run.ID).Msg("Failed to persist failed run")
	}

	return run, fmt.Errorf("%s stage failed: %w", stage, err)
}
