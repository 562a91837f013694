package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/interfaces"
)

// Service is the narrative text generator backed by the provider factory.
// It resolves the configured model once at construction so every run of the
// pipeline reports a stable model identifier.
type Service struct {
	factory     *ProviderFactory
	provider    ProviderType
	model       string
	temperature float32
	maxTokens   int
	schema      map[string]interface{}
	logger      arbor.ILogger
}

// Compile-time interface check
var _ interfaces.Generator = (*Service)(nil)

// Option configures the Service
type Option func(*Service)

// WithOutputSchema sets a JSON schema enforced on providers that support
// structured output
func WithOutputSchema(schema map[string]interface{}) Option {
	return func(s *Service) {
		s.schema = schema
	}
}

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Generator from configuration. The model comes from
// grounding.model when set, otherwise the default provider's configured
// model. Construction fails when the resolved provider has no API key, so
// callers can degrade to template-only narration instead of failing at
// generation time.
func NewService(cfg *common.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	factory := NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, common.GetLogger())

	provider := factory.DetectProvider(cfg.Grounding.Model)
	model := factory.NormalizeModel(cfg.Grounding.Model)
	if model == "" {
		model = factory.GetDefaultModel(provider)
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured for provider %s", provider)
	}
	if !factory.HasCredentials(provider) {
		return nil, fmt.Errorf("no API key configured for provider %s", provider)
	}

	s := &Service{
		factory:     factory,
		provider:    provider,
		model:       model,
		temperature: cfg.Grounding.Temperature,
		maxTokens:   cfg.Grounding.MaxTokens,
		logger:      common.GetLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger != nil {
		s.logger.Info().
			Str("provider", string(provider)).
			Str("model", model).
			Msg("LLM service initialized")
	}

	return s, nil
}

// Generate produces a completion for the given conversation
func (s *Service) Generate(ctx context.Context, messages []interfaces.Message) (string, error) {
	resp, err := s.factory.GenerateContent(ctx, &ContentRequest{
		Messages:     messages,
		Model:        s.model,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		OutputSchema: s.schema,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ModelName returns the resolved model identifier
func (s *Service) ModelName() string {
	return s.model
}

// Close releases provider clients
func (s *Service) Close() error {
	return s.factory.Close()
}
