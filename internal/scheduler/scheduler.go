// Package scheduler re-runs the analysis pipeline on a cron schedule. Each
// firing re-anchors the configured trailing window at the current day
// boundary and runs every configured border, so yesterday's report is
// regenerated with the freshest published data. Borders run concurrently;
// a border whose previous run is still in flight is skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/models"
)

// PipelineRunner executes one analysis run; the production implementation
// is pipeline.Runner
type PipelineRunner interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunArtifact, error)
}

// Service drives scheduled batch runs
type Service struct {
	config   *common.Config
	runner   PipelineRunner
	cron     *cron.Cron
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	inflight map[string]bool // Border label -> run in progress
	running  bool
}

// NewService creates a scheduler over the given pipeline runner
func NewService(config *common.Config, runner PipelineRunner) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:   config,
		runner:   runner,
		cron:     cron.New(),
		logger:   common.GetLogger(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
	}
}

// Start registers the cron entry and begins firing
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Scheduler.Schedule
	if schedule == "" {
		schedule = "0 6 * * *"
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(schedule, s.fire); err != nil {
		s.cancel()
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Int("borders", len(s.requests(time.Now().UTC()))).
		Msg("Scheduler started")
	return nil
}

// Stop cancels in-flight runs and waits briefly for them to settle
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Scheduled runs did not settle within 30s")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// fire runs one scheduled batch: every configured border against the
// re-anchored window. The batch returns when all launched runs finish.
func (s *Service) fire() {
	now := time.Now().UTC()
	requests := s.requests(now)

	s.logger.Info().
		Int("borders", len(requests)).
		Str("anchor", now.Format("2006-01-02")).
		Msg("Scheduled batch started")

	var wg sync.WaitGroup
	for _, req := range requests {
		border := req.InDomain + ">" + req.OutDomain

		s.mu.Lock()
		if s.inflight[border] {
			s.mu.Unlock()
			s.logger.Warn().Str("border", border).Msg("Previous run still in flight, skipping border")
			continue
		}
		s.inflight[border] = true
		s.mu.Unlock()

		wg.Add(1)
		go func(req models.RunRequest, border string) {
			defer wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.inflight, border)
				s.mu.Unlock()
			}()

			run, err := s.runner.Run(s.ctx, req)
			if err != nil {
				s.logger.Error().Err(err).Str("border", border).Msg("Scheduled run failed")
				return
			}
			s.logger.Info().
				Str("border", border).
				Str("run_id", run.ID).
				Str("best_model", bestModel(run)).
				Msg("Scheduled run completed")
		}(req, border)
	}
	wg.Wait()
}

// requests builds the batch for one firing: the primary border from [run]
// plus any extras from [scheduler.borders], deduplicated, each with the
// trailing window re-anchored at the last complete UTC day
func (s *Service) requests(now time.Time) []models.RunRequest {
	end := now.Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -s.config.Run.Days)

	borders := make([]common.BorderConfig, 0, 1+len(s.config.Scheduler.Borders))
	borders = append(borders, common.BorderConfig{
		InDomain:  s.config.Run.InDomain,
		OutDomain: s.config.Run.OutDomain,
	})
	borders = append(borders, s.config.Scheduler.Borders...)

	seen := make(map[string]bool, len(borders))
	requests := make([]models.RunRequest, 0, len(borders))
	for _, b := range borders {
		if b.InDomain == "" || b.OutDomain == "" {
			continue
		}
		label := b.InDomain + ">" + b.OutDomain
		if seen[label] {
			continue
		}
		seen[label] = true

		requests = append(requests, models.RunRequest{
			InDomain:    b.InDomain,
			OutDomain:   b.OutDomain,
			PeriodStart: start,
			PeriodEnd:   end,
			Resolution:  s.config.Run.Resolution,
		})
	}
	return requests
}

func bestModel(run *models.RunArtifact) string {
	if run.Bench == nil {
		return ""
	}
	return run.Bench.Best
}
