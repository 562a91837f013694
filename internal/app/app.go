// Package app wires the application together: storage, the upstream
// ENTSO-E client, the narrative backend, the pipeline runner and the
// scheduler. Optional components degrade instead of failing construction:
// without an API token only snapshot and CSV runs succeed, and without
// LLM credentials reports carry the deterministic template narrative.
package app

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/entsoe"
	"github.com/ternarybob/auspex/internal/grounding"
	"github.com/ternarybob/auspex/internal/interfaces"
	"github.com/ternarybob/auspex/internal/pipeline"
	"github.com/ternarybob/auspex/internal/scheduler"
	"github.com/ternarybob/auspex/internal/services/llm"
	"github.com/ternarybob/auspex/internal/storage"
)

// App holds the wired application components
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	Storage   interfaces.StorageManager
	Runner    *pipeline.Runner
	Scheduler *scheduler.Service

	llmService *llm.Service
}

// New builds the application from configuration. Storage is mandatory;
// the upstream client and the narrative backend are attached when their
// credentials resolve.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = storageManager

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithVersion(common.GetVersion()),
	}

	if token, err := common.ResolveAPIKey("entsoe_api_token", config.Entsoe.APIToken); err == nil {
		client := entsoe.NewClient(token,
			entsoe.WithBaseURL(config.Entsoe.BaseURL),
			entsoe.WithRateLimit(config.Entsoe.RateLimit),
			entsoe.WithHTTPClient(&http.Client{Timeout: config.Entsoe.RequestTimeout}),
			entsoe.WithLogger(logger),
		)
		opts = append(opts, pipeline.WithFetcher(client))
		logger.Info().Str("base_url", config.Entsoe.BaseURL).Msg("ENTSO-E client attached")
	} else {
		logger.Warn().Msg("No ENTSO-E security token configured; only snapshot and CSV runs will succeed")
	}

	llmService, err := llm.NewService(config,
		llm.WithOutputSchema(grounding.ResponseSchema()),
		llm.WithLogger(logger),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("Narrative backend unavailable; reports will use the template narrative")
	} else {
		a.llmService = llmService
		opts = append(opts, pipeline.WithGenerator(llmService))
		logger.Info().Str("model", llmService.ModelName()).Msg("Narrative backend attached")
	}

	a.Runner = pipeline.NewRunner(config, storageManager, opts...)
	a.Scheduler = scheduler.NewService(config, a.Runner)

	logger.Info().Msg("Application initialized")
	return a, nil
}

// Close releases application resources in reverse construction order
func (a *App) Close() error {
	var firstErr error

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.llmService != nil {
		if err := a.llmService.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return firstErr
}
