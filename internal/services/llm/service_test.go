package llm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/interfaces"
)

func testFactory() *ProviderFactory {
	cfg := common.NewDefaultConfig()
	return NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, nil)
}

func TestDetectProvider(t *testing.T) {
	factory := testFactory()

	tests := []struct {
		model string
		want  ProviderType
	}{
		{"claude-haiku-3-5-20241022", ProviderClaude},
		{"claude/claude-haiku-3-5-20241022", ProviderClaude},
		{"anthropic/claude-sonnet-4", ProviderClaude},
		{"gemini-3-flash-preview", ProviderGemini},
		{"gemini/gemini-3-flash-preview", ProviderGemini},
		{"google/gemini-3-pro", ProviderGemini},
		{"CLAUDE-UPPER", ProviderClaude},
		{"", ProviderGemini},              // default provider
		{"mistral-large", ProviderGemini}, // unknown falls back to default
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, factory.DetectProvider(tt.model), tt.model)
	}
}

func TestNormalizeModel(t *testing.T) {
	factory := testFactory()

	assert.Equal(t, "claude-haiku-3-5-20241022", factory.NormalizeModel("claude/claude-haiku-3-5-20241022"))
	assert.Equal(t, "gemini-3-flash-preview", factory.NormalizeModel("gemini/gemini-3-flash-preview"))
	assert.Equal(t, "gemini-3-flash-preview", factory.NormalizeModel("gemini-3-flash-preview"))
	assert.Equal(t, "", factory.NormalizeModel(""))
}

func TestGetDefaultModel(t *testing.T) {
	factory := testFactory()

	assert.Equal(t, factory.claudeConfig.Model, factory.GetDefaultModel(ProviderClaude))
	assert.Equal(t, factory.geminiConfig.Model, factory.GetDefaultModel(ProviderGemini))
}

func TestHasCredentials(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Gemini.APIKey = "gm-key"
	factory := NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, nil)

	assert.True(t, factory.HasCredentials(ProviderGemini))
	assert.False(t, factory.HasCredentials(ProviderClaude))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	// No API hint: initial backoff, then multiplied
	assert.Equal(t, 45*time.Second, cfg.CalculateBackoff(0, 0))
	assert.Equal(t, time.Duration(float64(45*time.Second)*1.5), cfg.CalculateBackoff(1, 0))

	// API hint plus buffer
	assert.Equal(t, 15*time.Second, cfg.CalculateBackoff(0, 10*time.Second))

	// Capped at MaxBackoff
	assert.Equal(t, cfg.MaxBackoff, cfg.CalculateBackoff(10, 0))
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(fmt.Errorf("Error 429, Message: quota exceeded")))
	assert.True(t, IsRateLimitError(fmt.Errorf("Status: RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(fmt.Errorf("connection refused")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := fmt.Errorf("Error 429, Message: You exceeded your current quota. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.001)

	err = fmt.Errorf("rate limited, retryDelay: 12s")
	assert.Equal(t, 12*time.Second, ExtractRetryDelay(err))

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(fmt.Errorf("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestConvertMessagesToClaude(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "You are an analyst."},
		{Role: "user", Content: "Summarize the run."},
		{Role: "assistant", Content: "Earlier draft."},
	}

	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	require.NoError(t, err)

	assert.Equal(t, "You are an analyst.", systemText)
	// System message is extracted, not part of the array
	assert.Len(t, claudeMessages, 2)
}

func TestConvertMessagesToClaudeErrors(t *testing.T) {
	_, _, err := convertMessagesToClaude(nil)
	assert.Error(t, err)

	_, _, err = convertMessagesToClaude([]interfaces.Message{
		{Role: "system", Content: "only system"},
	})
	assert.Error(t, err)
}

func TestConvertMessagesToGemini(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "You are an analyst."},
		{Role: "user", Content: "Summarize the run."},
		{Role: "assistant", Content: "Earlier draft."},
	}

	contents, systemText, err := convertMessagesToGemini(messages)
	require.NoError(t, err)

	assert.Equal(t, "You are an analyst.", systemText)
	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type":     "object",
		"required": []string{"section_1", "section_2"},
		"properties": map[string]interface{}{
			"section_1": map[string]interface{}{"type": "string"},
			"section_2": map[string]interface{}{"type": "string"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, schema)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.ElementsMatch(t, []string{"section_1", "section_2"}, schema.Required)
	require.Contains(t, schema.Properties, "section_1")
	assert.Equal(t, genai.TypeString, schema.Properties["section_1"].Type)
}

func TestConvertToGenaiSchemaEmpty(t *testing.T) {
	schema, err := convertToGenaiSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestNewServiceRequiresAPIKey(t *testing.T) {
	cfg := common.NewDefaultConfig()
	// Default config carries no keys

	_, err := NewService(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewServiceResolvesModel(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Gemini.APIKey = "gm-key"

	service, err := NewService(cfg)
	require.NoError(t, err)
	defer service.Close()

	// Empty grounding model resolves to the default provider's model
	assert.Equal(t, cfg.Gemini.Model, service.ModelName())
}

func TestNewServiceHonorsExplicitModel(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Claude.APIKey = "cl-key"
	cfg.Grounding.Model = "claude/claude-sonnet-4-20250514"

	service, err := NewService(cfg, WithOutputSchema(map[string]interface{}{"type": "object"}))
	require.NoError(t, err)
	defer service.Close()

	assert.Equal(t, "claude-sonnet-4-20250514", service.ModelName())
	assert.NotNil(t, service.schema)
}
