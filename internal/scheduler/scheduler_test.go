package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/models"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []models.RunRequest
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, req models.RunRequest) (*models.RunArtifact, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.RunArtifact{ID: "run_fake", Status: models.RunStatusCompleted}, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func schedulerConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Run.InDomain = "DK_1"
	cfg.Run.OutDomain = "DK_2"
	cfg.Run.Days = 28
	return cfg
}

func TestRequestsReanchorWindow(t *testing.T) {
	s := NewService(schedulerConfig(), &fakeRunner{})

	now := time.Date(2025, 6, 29, 6, 0, 0, 0, time.UTC)
	reqs := s.requests(now)
	require.Len(t, reqs, 1)

	assert.Equal(t, "DK_1", reqs[0].InDomain)
	assert.Equal(t, "DK_2", reqs[0].OutDomain)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), reqs[0].PeriodStart)
	assert.Equal(t, time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC), reqs[0].PeriodEnd)
	assert.Equal(t, "PT15M", reqs[0].Resolution)
}

func TestRequestsIncludeExtraBorders(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Scheduler.Borders = []common.BorderConfig{
		{InDomain: "SE_4", OutDomain: "DK_2"},
		{InDomain: "DK_1", OutDomain: "DK_2"}, // duplicate of [run]
		{InDomain: "", OutDomain: "DK_2"},     // incomplete, dropped
	}
	s := NewService(cfg, &fakeRunner{})

	reqs := s.requests(time.Date(2025, 6, 29, 6, 0, 0, 0, time.UTC))
	require.Len(t, reqs, 2)
	assert.Equal(t, "DK_1", reqs[0].InDomain)
	assert.Equal(t, "SE_4", reqs[1].InDomain)
}

func TestFireRunsEveryBorder(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Scheduler.Borders = []common.BorderConfig{{InDomain: "SE_4", OutDomain: "DK_2"}}
	runner := &fakeRunner{}
	s := NewService(cfg, runner)

	s.fire()
	assert.Equal(t, 2, runner.calls())
}

func TestFireSkipsInflightBorder(t *testing.T) {
	runner := &fakeRunner{}
	s := NewService(schedulerConfig(), runner)

	s.inflight["DK_1>DK_2"] = true
	s.fire()
	assert.Zero(t, runner.calls())

	delete(s.inflight, "DK_1>DK_2")
	s.fire()
	assert.Equal(t, 1, runner.calls())
}

func TestFireReportsRunFailure(t *testing.T) {
	runner := &fakeRunner{err: assert.AnError}
	s := NewService(schedulerConfig(), runner)

	// A failed run must not leave its border marked in flight
	s.fire()
	s.fire()
	assert.Equal(t, 2, runner.calls())
}

func TestStartStop(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Scheduler.Schedule = "@every 1h"
	s := NewService(cfg, &fakeRunner{})

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start must be rejected")

	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop(), "stop is idempotent")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := schedulerConfig()
	cfg.Scheduler.Schedule = "every morning"
	s := NewService(cfg, &fakeRunner{})

	assert.Error(t, s.Start())
}
